package dtls

import (
	"crypto/hmac"
	"time"
)

// buildMessage serializes a handshake message with the next local
// message sequence. Retransmissions resend the identical bytes.
func (c *Conn) buildMessage(t handshakeType, body []byte) []byte {
	hdr := handshakeHeader{
		handshakeType:  t,
		length:         uint32(len(body)), //nolint:gosec
		messageSeq:     c.localMsgSeq,
		fragmentOffset: 0,
		fragmentLength: uint32(len(body)), //nolint:gosec
	}
	c.localMsgSeq++
	return append(hdr.marshal(), body...)
}

// sendRaw writes pre-built handshake messages as one flight.
func (c *Conn) sendRaw(msgs ...[]byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for _, m := range msgs {
		if err := c.writeRecordLocked(contentTypeHandshake, m); err != nil {
			return err
		}
	}
	return nil
}

// clientHandshake drives the client flights:
//
//	F1: ClientHello                       -> HelloVerifyRequest
//	F3: ClientHello+cookie                -> SH, Cert, SKE, CertReq, SHD
//	F5: Cert, CKE, CertVerify, CCS, Fin   -> CCS, Fin
func (c *Conn) clientHandshake(deadline time.Time) error { //nolint:gocognit,gocyclo
	var err error
	if c.clientRandom, err = newRandom(); err != nil {
		return err
	}
	if c.keypair, err = newECDHEKeypair(); err != nil {
		return err
	}

	hello := &clientHello{
		random:       c.clientRandom,
		srtpProfiles: c.config.SRTPProtectionProfiles,
	}

	// flight 1: initial hello, excluded from the transcript
	helloMsg := c.buildMessage(typeClientHello, hello.marshal())
	if err = c.sendRaw(helloMsg); err != nil {
		return err
	}

	t, body, err := c.readHandshakeMessage(deadline, func() error { return c.sendRaw(helloMsg) })
	if err != nil {
		return err
	}

	// HelloVerifyRequest is optional; some servers answer directly
	if t == typeHelloVerifyRequest {
		var hvr helloVerifyRequest
		if err = hvr.unmarshal(body); err != nil {
			return err
		}
		hello.cookie = hvr.cookie

		helloMsg = c.buildMessage(typeClientHello, hello.marshal())
		c.transcript = append(c.transcript, helloMsg...)
		if err = c.sendRaw(helloMsg); err != nil {
			return err
		}
		if t, body, err = c.readHandshakeMessage(deadline, func() error { return c.sendRaw(helloMsg) }); err != nil {
			return err
		}
	} else {
		// no cookie exchange: the initial hello starts the transcript
		c.transcript = append(c.transcript, helloMsg...)
	}

	// server flight: ServerHello .. ServerHelloDone
	if t != typeServerHello {
		return errUnexpectedMsg
	}
	var sh serverHello
	if err = sh.unmarshal(body); err != nil {
		return err
	}
	c.serverRandom = sh.random
	c.srtpProfile = sh.srtpProfile
	c.appendReceivedToTranscript(t, body)

	var serverCert certificateMsg
	var ske serverKeyExchange
	sawCertRequest := false
	for t != typeServerHelloDone {
		if t, body, err = c.readHandshakeMessage(deadline, nil); err != nil {
			return err
		}
		c.appendReceivedToTranscript(t, body)
		switch t {
		case typeCertificate:
			if err = serverCert.unmarshal(body); err != nil {
				return err
			}
		case typeServerKeyExchange:
			if err = ske.unmarshal(body); err != nil {
				return err
			}
		case typeCertificateRequest:
			sawCertRequest = true
		case typeServerHelloDone:
		default:
			return errUnexpectedMsg
		}
	}

	if serverCert.certificate == nil || ske.publicKey == nil {
		return errUnexpectedMsg
	}
	if err = verifyWithCertificate(serverCert.certificate,
		ske.signedParams(c.clientRandom[:], c.serverRandom[:]), ske.signature); err != nil {
		return err
	}
	if err = c.verifyPeer(serverCert.certificate); err != nil {
		return err
	}

	// flight 5
	var flight [][]byte
	addToFlight := func(t handshakeType, body []byte) {
		msg := c.buildMessage(t, body)
		flight = append(flight, msg)
		c.transcript = append(c.transcript, msg...)
	}

	if sawCertRequest {
		addToFlight(typeCertificate, (&certificateMsg{certificate: c.config.leaf()}).marshal())
	}
	addToFlight(typeClientKeyExchange, (&clientKeyExchange{publicKey: c.keypair.public[:]}).marshal())

	if sawCertRequest {
		sig, signErr := signWithCertificate(c.config.Certificate.PrivateKey, c.transcript)
		if signErr != nil {
			return signErr
		}
		addToFlight(typeCertificateVerify, (&certificateVerify{signature: sig}).marshal())
	}

	preMaster, err := c.keypair.sharedSecret(ske.publicKey)
	if err != nil {
		return err
	}
	if err = c.installKeys(preMaster); err != nil {
		return err
	}

	verifyData := prfVerifyData(c.masterSecret, c.transcriptHash(), labelClientFinished)
	finishedMsg := c.buildMessage(typeFinished, (&finished{verifyData: verifyData}).marshal())
	c.transcript = append(c.transcript, finishedMsg...)

	sendFlight5 := func() error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		c.localEpoch = 0
		for _, msg := range flight {
			if err := c.writeRecordLocked(contentTypeHandshake, msg); err != nil {
				return err
			}
		}
		if err := c.writeRecordLocked(contentTypeChangeCipherSpec, []byte{0x01}); err != nil {
			return err
		}
		c.localEpoch = 1
		return c.writeRecordLocked(contentTypeHandshake, finishedMsg)
	}
	if err = sendFlight5(); err != nil {
		return err
	}
	c.finalFlight = append(flight, finishedMsg) //nolint:gocritic
	c.finalFlightCCS = true

	// the server's Finished covers our Finished too
	expectedServerVerify := prfVerifyData(c.masterSecret, c.transcriptHash(), labelServerFinished)

	if t, body, err = c.readHandshakeMessage(deadline, sendFlight5); err != nil {
		return err
	}
	if t != typeFinished {
		return errUnexpectedMsg
	}
	var fin finished
	if err = fin.unmarshal(body); err != nil {
		return err
	}
	if !hmac.Equal(fin.verifyData[:12], expectedServerVerify) {
		return errSignatureInvalid
	}
	return nil
}
