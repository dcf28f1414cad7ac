package transport

import (
	"bufio"
	"encoding/binary"
	"io"
	"time"

	"github.com/VolantMQ/vlapi/mqttp"
	"github.com/pkg/errors"
)

var (
	errMalformedLength = errors.New("transport: malformed remaining length")
	errPacketTooLarge  = errors.New("transport: packet exceeds size limit")
	errLengthMismatch  = errors.New("transport: decoded length mismatch")
)

// session serves a single MQTT connection. The broker side is intentionally
// thin: clients publish telemetry which is handed to the topic router, and
// subscriptions are acknowledged so standard clients keep the link open.
type session struct {
	*baseConfig

	conn      Conn
	rd        *bufio.Reader
	version   mqttp.ProtocolVersion
	id        string
	keepAlive time.Duration
}

func (s *session) run() {
	defer func() {
		s.conn.Close() // nolint: errcheck
	}()

	s.rd = bufio.NewReader(s.conn)

	if err := s.connect(); err != nil {
		s.log.Debugw("connect rejected", "remote", s.conn.RemoteAddr().String(), "error", err)
		return
	}

	s.Metrics.Clients().OnConnected()
	defer s.Metrics.Clients().OnDisconnected()

	s.log.Debugw("client connected", "client", s.id, "remote", s.conn.RemoteAddr().String())

	if err := s.serve(); err != nil && err != io.EOF {
		s.log.Debugw("session closed", "client", s.id, "error", err)
	}
}

// connect reads CONNECT from the wire and answers with CONNACK
func (s *session) connect() error {
	s.conn.SetReadDeadline(time.Now().Add(time.Second * time.Duration(s.ConnectTimeout))) // nolint: errcheck

	// protocol version is not known until CONNECT is decoded
	req, err := s.readPacket(mqttp.ProtocolV50)
	if err != nil {
		return err
	}

	pkt, ok := req.(*mqttp.Connect)
	if !ok {
		return errors.New("transport: expected CONNECT, got " + req.Type().Name())
	}

	s.version = pkt.Version()
	s.id = string(pkt.ClientID())

	m, _ := mqttp.New(s.version, mqttp.CONNACK)
	resp, _ := m.(*mqttp.ConnAck)

	if allowed, has := s.AllowedVersions[s.version]; !has || !allowed {
		reason := mqttp.CodeRefusedUnacceptableProtocolVersion
		if s.version == mqttp.ProtocolV50 {
			reason = mqttp.CodeUnsupportedProtocol
		}

		resp.SetReturnCode(reason) // nolint: errcheck
		s.writePacket(resp)        // nolint: errcheck

		return errors.New("transport: protocol version rejected")
	}

	if pkt.KeepAlive() == 0 {
		pkt.SetKeepAlive(uint16(s.KeepAlive))
	}

	resp.SetReturnCode(mqttp.CodeSuccess) // nolint: errcheck

	if err = s.writePacket(resp); err != nil {
		return err
	}

	keepAlive := time.Duration(pkt.KeepAlive())
	s.keepAlive = time.Second * (keepAlive + keepAlive/2)
	s.conn.SetReadDeadline(time.Now().Add(s.keepAlive)) // nolint: errcheck

	return nil
}

func (s *session) serve() error {
	for {
		select {
		case <-s.quit:
			return nil
		default:
		}

		req, err := s.readPacket(s.version)
		if err != nil {
			return err
		}

		s.Metrics.Packets().OnRecv(req.Type())

		var resp mqttp.IFace

		switch pkt := req.(type) {
		case *mqttp.Publish:
			resp = s.onPublish(pkt)
		case *mqttp.Subscribe:
			resp = s.onSubscribe(pkt)
		case *mqttp.UnSubscribe:
			resp = s.onUnSubscribe(pkt)
		case *mqttp.Ack:
			if req.Type() == mqttp.PUBREL {
				m, _ := mqttp.New(s.version, mqttp.PUBCOMP)
				comp, _ := m.(*mqttp.Ack)
				id, _ := pkt.ID()
				comp.SetPacketID(id)
				resp = comp
			}
		case *mqttp.PingReq:
			resp, _ = mqttp.New(s.version, mqttp.PINGRESP)
		case *mqttp.Disconnect:
			return nil
		default:
			return errors.New("transport: unexpected packet " + req.Type().Name())
		}

		if resp != nil {
			if err = s.writePacket(resp); err != nil {
				return err
			}
		}

		s.conn.SetReadDeadline(time.Now().Add(s.keepAlive)) // nolint: errcheck
	}
}

func (s *session) onPublish(pkt *mqttp.Publish) mqttp.IFace {
	if !s.Router.Process(pkt.Topic(), pkt.Payload()) {
		s.Metrics.Packets().OnRejected(1)
	}

	switch pkt.QoS() {
	case mqttp.QoS1:
		m, _ := mqttp.New(s.version, mqttp.PUBACK)
		resp, _ := m.(*mqttp.Ack)
		id, _ := pkt.ID()
		resp.SetPacketID(id)

		return resp
	case mqttp.QoS2:
		m, _ := mqttp.New(s.version, mqttp.PUBREC)
		resp, _ := m.(*mqttp.Ack)
		id, _ := pkt.ID()
		resp.SetPacketID(id)

		return resp
	}

	return nil
}

// onSubscribe grants every requested filter at QoS 0. The broker does not
// fan out to MQTT subscribers, delivery happens over SSE and WebSocket hubs.
func (s *session) onSubscribe(pkt *mqttp.Subscribe) mqttp.IFace {
	m, _ := mqttp.New(s.version, mqttp.SUBACK)
	resp, _ := m.(*mqttp.SubAck)

	id, _ := pkt.ID()
	resp.SetPacketID(id)

	pkt.ForEachTopic(func(t *mqttp.Topic) error { // nolint: errcheck
		s.Metrics.Subs().OnSubscribe()
		s.log.Debugw("subscribe acknowledged", "client", s.id, "filter", t.Filter())
		resp.AddReturnCode(mqttp.CodeSuccess) // nolint: errcheck
		return nil
	})

	return resp
}

func (s *session) onUnSubscribe(pkt *mqttp.UnSubscribe) mqttp.IFace {
	m, _ := mqttp.New(s.version, mqttp.UNSUBACK)
	resp, _ := m.(*mqttp.UnSubAck)

	id, _ := pkt.ID()
	resp.SetPacketID(id)

	pkt.ForEachTopic(func(*mqttp.Topic) error { // nolint: errcheck
		s.Metrics.Subs().OnUnsubscribe()
		return nil
	})

	return resp
}

// readPacket reads one full MQTT packet off the wire. Fixed header first,
// remaining length as varint, at most 4 bytes with continuation bit
func (s *session) readPacket(v mqttp.ProtocolVersion) (mqttp.IFace, error) {
	header := make([]byte, 1, 5)

	if _, err := io.ReadFull(s.rd, header); err != nil {
		return nil, err
	}

	for i := 0; i < 4; i++ {
		b, err := s.rd.ReadByte()
		if err != nil {
			return nil, err
		}

		header = append(header, b)

		if b < 0x80 {
			break
		}

		if i == 3 {
			return nil, errMalformedLength
		}
	}

	remLen, n := binary.Uvarint(header[1:])
	if n <= 0 {
		return nil, errMalformedLength
	}

	if int(remLen) > s.MaxPacketSize {
		return nil, errPacketTooLarge
	}

	total := len(header) + int(remLen)

	buf := make([]byte, total)
	copy(buf, header)

	if _, err := io.ReadFull(s.rd, buf[len(header):]); err != nil {
		return nil, err
	}

	pkt, decoded, err := mqttp.Decode(v, buf)
	if err != nil {
		return nil, errors.Wrap(err, "transport: decode packet")
	}

	if decoded != total {
		return nil, errLengthMismatch
	}

	return pkt, nil
}

func (s *session) writePacket(pkt mqttp.IFace) error {
	buf, err := mqttp.Encode(pkt)
	if err != nil {
		return err
	}

	if _, err = s.conn.Write(buf); err != nil {
		return err
	}

	s.Metrics.Packets().OnSent(pkt.Type())

	return nil
}
