package dtls

import (
	"crypto/hmac"
	"crypto/rand"
	"time"
)

// serverHandshake drives the server flights:
//
//	<- ClientHello            -> HelloVerifyRequest
//	<- ClientHello+cookie     -> SH, Cert, SKE, CertReq, SHD
//	<- Cert, CKE, CV, CCS, Fin -> CCS, Fin
func (c *Conn) serverHandshake(deadline time.Time) error { //nolint:gocognit,gocyclo
	cookieSecret := make([]byte, 32)
	if _, err := rand.Read(cookieSecret); err != nil {
		return err
	}

	// first ClientHello
	t, body, err := c.readHandshakeMessage(deadline, nil)
	if err != nil {
		return err
	}
	if t != typeClientHello {
		return errUnexpectedMsg
	}
	var hello clientHello
	if err = hello.unmarshal(body); err != nil {
		return err
	}

	cookie := generateCookie(cookieSecret, hello.random[:])
	if len(hello.cookie) == 0 {
		hvrMsg := c.buildMessage(typeHelloVerifyRequest, (&helloVerifyRequest{cookie: cookie}).marshal())
		if err = c.sendRaw(hvrMsg); err != nil {
			return err
		}

		// second ClientHello, with cookie
		if t, body, err = c.readHandshakeMessage(deadline, func() error { return c.sendRaw(hvrMsg) }); err != nil {
			return err
		}
		if t != typeClientHello {
			return errUnexpectedMsg
		}
		if err = hello.unmarshal(body); err != nil {
			return err
		}
		if !hmac.Equal(hello.cookie, cookie) {
			return errHandshakeFormat
		}
	}
	c.clientRandom = hello.random
	c.appendReceivedToTranscript(typeClientHello, body)

	// negotiate use_srtp: first offered profile we also support
	c.srtpProfile = 0
	for _, offered := range hello.srtpProfiles {
		for _, supported := range c.config.SRTPProtectionProfiles {
			if offered == supported {
				c.srtpProfile = offered
				break
			}
		}
		if c.srtpProfile != 0 {
			break
		}
	}

	if c.serverRandom, err = newRandom(); err != nil {
		return err
	}
	if c.keypair, err = newECDHEKeypair(); err != nil {
		return err
	}

	sh := &serverHello{random: c.serverRandom, srtpProfile: c.srtpProfile}

	ske := &serverKeyExchange{publicKey: c.keypair.public[:]}
	ske.signature, err = signWithCertificate(c.config.Certificate.PrivateKey,
		ske.signedParams(c.clientRandom[:], c.serverRandom[:]))
	if err != nil {
		return err
	}

	var flight [][]byte
	addToFlight := func(t handshakeType, body []byte) {
		msg := c.buildMessage(t, body)
		flight = append(flight, msg)
		c.transcript = append(c.transcript, msg...)
	}
	addToFlight(typeServerHello, sh.marshal())
	addToFlight(typeCertificate, (&certificateMsg{certificate: c.config.leaf()}).marshal())
	addToFlight(typeServerKeyExchange, ske.marshal())
	addToFlight(typeCertificateRequest, (&certificateRequest{}).marshal())
	addToFlight(typeServerHelloDone, nil)

	if err = c.sendRaw(flight...); err != nil {
		return err
	}
	resendServerFlight := func() error { return c.sendRaw(flight...) }

	// client flight 5
	var clientCert certificateMsg
	var cke clientKeyExchange
	var sawCertificateVerify bool
	var transcriptBeforeVerify []byte

	for {
		if t, body, err = c.readHandshakeMessage(deadline, resendServerFlight); err != nil {
			return err
		}
		if t == typeFinished {
			break
		}
		if t == typeCertificateVerify {
			transcriptBeforeVerify = append([]byte{}, c.transcript...)
		}
		c.appendReceivedToTranscript(t, body)

		switch t {
		case typeCertificate:
			if err = clientCert.unmarshal(body); err != nil {
				return err
			}
		case typeClientKeyExchange:
			if err = cke.unmarshal(body); err != nil {
				return err
			}
		case typeCertificateVerify:
			var cv certificateVerify
			if err = cv.unmarshal(body); err != nil {
				return err
			}
			if clientCert.certificate == nil {
				return errUnexpectedMsg
			}
			if err = verifyWithCertificate(clientCert.certificate, transcriptBeforeVerify, cv.signature); err != nil {
				return err
			}
			sawCertificateVerify = true

			// keys have to be ready before the encrypted Finished
			preMaster, secretErr := c.keypair.sharedSecret(cke.publicKey)
			if secretErr != nil {
				return secretErr
			}
			if err = c.installKeys(preMaster); err != nil {
				return err
			}
		default:
			return errUnexpectedMsg
		}
	}

	if !sawCertificateVerify || clientCert.certificate == nil {
		return errUnexpectedMsg
	}
	if err = c.verifyPeer(clientCert.certificate); err != nil {
		return err
	}

	// verify the client Finished against the transcript before it
	expectedClientVerify := prfVerifyData(c.masterSecret, c.transcriptHash(), labelClientFinished)
	var fin finished
	if err = fin.unmarshal(body); err != nil {
		return err
	}
	if !hmac.Equal(fin.verifyData[:12], expectedClientVerify) {
		return errSignatureInvalid
	}
	c.appendReceivedToTranscript(typeFinished, body)

	// final flight: CCS + Finished
	verifyData := prfVerifyData(c.masterSecret, c.transcriptHash(), labelServerFinished)
	finishedMsg := c.buildMessage(typeFinished, (&finished{verifyData: verifyData}).marshal())

	sendFinal := func() error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		c.localEpoch = 0
		if err := c.writeRecordLocked(contentTypeChangeCipherSpec, []byte{0x01}); err != nil {
			return err
		}
		c.localEpoch = 1
		return c.writeRecordLocked(contentTypeHandshake, finishedMsg)
	}
	if err = sendFinal(); err != nil {
		return err
	}
	c.finalFlight = [][]byte{finishedMsg}
	c.finalFlightCCS = true
	return nil
}
