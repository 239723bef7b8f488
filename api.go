package webrtc

// API bundles the engines a set of PeerConnections share. Applications
// needing custom codecs or transport knobs build one with NewAPI;
// NewPeerConnection uses the defaults.
type API struct {
	settingEngine *SettingEngine
	mediaEngine   *MediaEngine
}

// APIOption configures an API.
type APIOption func(*API)

// WithMediaEngine injects a custom codec table. The engine is owned by
// the API afterwards.
func WithMediaEngine(m *MediaEngine) APIOption {
	return func(a *API) { a.mediaEngine = m }
}

// WithSettingEngine injects low-level transport settings.
func WithSettingEngine(s SettingEngine) APIOption {
	return func(a *API) { a.settingEngine = &s }
}

// NewAPI builds an API from options, filling defaults for whatever is
// not supplied.
func NewAPI(opts ...APIOption) *API {
	a := &API{}
	for _, opt := range opts {
		opt(a)
	}
	if a.settingEngine == nil {
		a.settingEngine = &SettingEngine{}
	}
	if a.mediaEngine == nil {
		a.mediaEngine = &MediaEngine{}
		// a zero-option API still negotiates media
		if err := a.mediaEngine.RegisterDefaultCodecs(); err != nil {
			panic(err) // static registration cannot fail
		}
	}
	return a
}
