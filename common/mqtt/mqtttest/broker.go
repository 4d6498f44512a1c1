// Package mqtttest runs a minimal in-process MQTT 3.1.1 broker for tests.
// It handles CONNECT, SUBSCRIBE, UNSUBSCRIBE, PUBLISH (QoS 0/1), PINGREQ and
// DISCONNECT, matches topics exactly and delivers at QoS 0.
package mqtttest

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

const (
	packetConnect     = 1
	packetConnack     = 2
	packetPublish     = 3
	packetPuback      = 4
	packetSubscribe   = 8
	packetSuback      = 9
	packetUnsubscribe = 10
	packetUnsuback    = 11
	packetPingreq     = 12
	packetPingresp    = 13
	packetDisconnect  = 14
)

type session struct {
	conn    net.Conn
	writeMu sync.Mutex
	topics  map[string]bool
}

func (s *session) write(pkt []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write(pkt)
	return err
}

// Broker is safe for concurrent use
type Broker struct {
	ln net.Listener
	wg sync.WaitGroup

	mu            sync.Mutex
	sessions      map[*session]struct{}
	connectDelay  time.Duration
	connects      int
	subscriptions map[string]int
	closed        bool
}

func NewBroker() *Broker {
	return &Broker{
		sessions:      map[*session]struct{}{},
		subscriptions: map[string]int{},
	}
}

// Start listens on addr ("127.0.0.1:0" picks a free port) and serves in the background
func (b *Broker) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	b.ln = ln

	b.wg.Add(1)
	go b.accept()
	return nil
}

// Addr is the listen address
func (b *Broker) Addr() string {
	return b.ln.Addr().String()
}

// URL is the broker address in paho form
func (b *Broker) URL() string {
	return "tcp://" + b.Addr()
}

// SetConnectDelay holds back CONNACK for every later CONNECT
func (b *Broker) SetConnectDelay(d time.Duration) {
	b.mu.Lock()
	b.connectDelay = d
	b.mu.Unlock()
}

// Connects counts CONNECT packets received
func (b *Broker) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

// Subscriptions counts SUBSCRIBE requests for topic, including repeats
func (b *Broker) Subscriptions(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscriptions[topic]
}

// Subscribed reports whether any open connection is subscribed to topic
func (b *Broker) Subscribed(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.sessions {
		if s.topics[topic] {
			return true
		}
	}
	return false
}

// OpenConns counts open client connections, including ones still waiting for CONNACK
func (b *Broker) OpenConns() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Publish delivers payload to every connection subscribed to topic and
// returns how many received it.
func (b *Broker) Publish(topic string, payload []byte) int {
	b.mu.Lock()
	var targets []*session
	for s := range b.sessions {
		if s.topics[topic] {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	pkt := encodePublish(topic, payload)
	n := 0
	for _, s := range targets {
		if s.write(pkt) == nil {
			n++
		}
	}
	return n
}

// DropConnections closes every client connection without a DISCONNECT,
// as a broker restart would.
func (b *Broker) DropConnections() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.sessions {
		_ = s.conn.Close()
	}
}

// Close stops listening and drops all connections
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	if b.ln != nil {
		_ = b.ln.Close()
	}
	b.DropConnections()
	b.wg.Wait()
}

func (b *Broker) accept() {
	defer b.wg.Done()
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}

		s := &session{conn: conn, topics: map[string]bool{}}
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			_ = conn.Close()
			return
		}
		b.sessions[s] = struct{}{}
		b.mu.Unlock()

		b.wg.Add(1)
		go b.serve(s)
	}
}

func (b *Broker) serve(s *session) {
	defer b.wg.Done()
	defer func() {
		b.mu.Lock()
		delete(b.sessions, s)
		b.mu.Unlock()
		_ = s.conn.Close()
	}()

	r := bufio.NewReader(s.conn)
	for {
		header, body, err := readPacket(r)
		if err != nil {
			return
		}

		switch header >> 4 {
		case packetConnect:
			b.mu.Lock()
			b.connects++
			delay := b.connectDelay
			b.mu.Unlock()
			if delay > 0 {
				time.Sleep(delay)
			}
			if s.write([]byte{packetConnack << 4, 2, 0, 0}) != nil {
				return
			}

		case packetSubscribe:
			if len(body) < 2 {
				return
			}
			id := body[:2]
			topics, err := parseTopics(body[2:], true)
			if err != nil {
				return
			}
			b.mu.Lock()
			for _, t := range topics {
				s.topics[t] = true
				b.subscriptions[t]++
			}
			b.mu.Unlock()

			ack := []byte{id[0], id[1]}
			for range topics {
				ack = append(ack, 0)
			}
			if s.write(encodePacket(packetSuback<<4, ack)) != nil {
				return
			}

		case packetUnsubscribe:
			if len(body) < 2 {
				return
			}
			id := body[:2]
			topics, err := parseTopics(body[2:], false)
			if err != nil {
				return
			}
			b.mu.Lock()
			for _, t := range topics {
				delete(s.topics, t)
			}
			b.mu.Unlock()
			if s.write(encodePacket(packetUnsuback<<4, []byte{id[0], id[1]})) != nil {
				return
			}

		case packetPublish:
			topic, rest, err := readString(body)
			if err != nil {
				return
			}
			if qos := (header >> 1) & 3; qos > 0 {
				if len(rest) < 2 {
					return
				}
				if qos == 1 {
					if s.write(encodePacket(packetPuback<<4, []byte{rest[0], rest[1]})) != nil {
						return
					}
				}
				rest = rest[2:]
			}
			b.Publish(topic, rest)

		case packetPingreq:
			if s.write([]byte{packetPingresp << 4, 0}) != nil {
				return
			}

		case packetDisconnect:
			return
		}
	}
}

func readPacket(r *bufio.Reader) (byte, []byte, error) {
	header, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}

	length, multiplier := 0, 1
	for i := 0; ; i++ {
		if i == 4 {
			return 0, nil, errors.New("malformed remaining length")
		}
		c, err := r.ReadByte()
		if err != nil {
			return 0, nil, err
		}
		length += int(c&127) * multiplier
		multiplier *= 128
		if c&128 == 0 {
			break
		}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return header, body, nil
}

func readString(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, fmt.Errorf("short string header")
	}
	n := int(binary.BigEndian.Uint16(b))
	if len(b) < 2+n {
		return "", nil, fmt.Errorf("short string")
	}
	return string(b[2 : 2+n]), b[2+n:], nil
}

func parseTopics(b []byte, withQoS bool) ([]string, error) {
	var topics []string
	for len(b) > 0 {
		topic, rest, err := readString(b)
		if err != nil {
			return nil, err
		}
		if withQoS {
			if len(rest) < 1 {
				return nil, fmt.Errorf("missing qos for %s", topic)
			}
			rest = rest[1:]
		}
		topics = append(topics, topic)
		b = rest
	}
	return topics, nil
}

func encodePublish(topic string, payload []byte) []byte {
	body := make([]byte, 2, 2+len(topic)+len(payload))
	binary.BigEndian.PutUint16(body, uint16(len(topic)))
	body = append(body, topic...)
	body = append(body, payload...)
	return encodePacket(packetPublish<<4, body)
}

func encodePacket(header byte, body []byte) []byte {
	pkt := []byte{header}
	n := len(body)
	for {
		c := byte(n % 128)
		n /= 128
		if n > 0 {
			c |= 128
		}
		pkt = append(pkt, c)
		if n == 0 {
			break
		}
	}
	return append(pkt, body...)
}
