// Package gossip implements a UDP epidemic dissemination node: a JSON
// envelope codec, a bounded peer table, duplicate suppression with a
// bounded message store, push forwarding and hybrid push-pull
// anti-entropy, and optional proof-of-work admission.
package gossip

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind labels one envelope type on the wire (the msg_type member).
type Kind string

const (
	KindHello     Kind = "HELLO"
	KindGetPeers  Kind = "GET_PEERS"
	KindPeersList Kind = "PEERS_LIST"
	KindGossip    Kind = "GOSSIP"
	KindPing      Kind = "PING"
	KindPong      Kind = "PONG"
	KindIHave     Kind = "IHAVE"
	KindIWant     Kind = "IWANT"
)

var knownKinds = map[Kind]bool{
	KindHello: true, KindGetPeers: true, KindPeersList: true,
	KindGossip: true, KindPing: true, KindPong: true,
	KindIHave: true, KindIWant: true,
}

// ErrMalformed is returned by Decode for every frame that cannot be
// accepted as a protocol envelope. Callers drop such frames.
var ErrMalformed = errors.New("malformed envelope")

var (
	errBadFrame    = fmt.Errorf("%w: frame is not a JSON object", ErrMalformed)
	errUnknownKind = fmt.Errorf("%w: unknown msg_type", ErrMalformed)
	errBadPayload  = fmt.Errorf("%w: payload does not fit msg_type", ErrMalformed)
)

// Payload is the typed body of an envelope. The concrete type is
// determined by the envelope's Kind.
type Payload interface {
	payloadKind() Kind
}

// HelloPayload introduces a node. Pow is present only when the sender
// computed an admission proof.
type HelloPayload struct {
	Capabilities []string  `json:"capabilities"`
	Pow          *PoWToken `json:"pow,omitempty"`
}

// GetPeersPayload asks for up to MaxPeers entries from the peer table.
type GetPeersPayload struct {
	MaxPeers int `json:"max_peers"`
}

// PeerEntry is one row of a PEERS_LIST payload.
type PeerEntry struct {
	NodeID string `json:"node_id"`
	Addr   string `json:"addr"`
}

type PeersListPayload struct {
	Peers []PeerEntry `json:"peers"`
}

// GossipPayload carries one application datum. OriginID and
// OriginTimestampMs identify the injection point and survive
// forwarding unchanged.
type GossipPayload struct {
	Topic             string `json:"topic"`
	Data              string `json:"data"`
	OriginID          string `json:"origin_id"`
	OriginTimestampMs int64  `json:"origin_timestamp_ms"`
}

type PingPayload struct {
	PingID string `json:"ping_id"`
	Seq    int    `json:"seq"`
}

type PongPayload struct {
	PingID string `json:"ping_id"`
	Seq    int    `json:"seq"`
}

// IHavePayload advertises recently seen message ids (hybrid pull).
type IHavePayload struct {
	IDs    []string `json:"ids"`
	MaxIDs int      `json:"max_ids"`
}

type IWantPayload struct {
	IDs []string `json:"ids"`
}

func (HelloPayload) payloadKind() Kind     { return KindHello }
func (GetPeersPayload) payloadKind() Kind  { return KindGetPeers }
func (PeersListPayload) payloadKind() Kind { return KindPeersList }
func (GossipPayload) payloadKind() Kind    { return KindGossip }
func (PingPayload) payloadKind() Kind      { return KindPing }
func (PongPayload) payloadKind() Kind      { return KindPong }
func (IHavePayload) payloadKind() Kind     { return KindIHave }
func (IWantPayload) payloadKind() Kind     { return KindIWant }

// Envelope is one protocol message. Field order matches the wire
// member order, one JSON object per datagram.
type Envelope struct {
	Version     int     `json:"version"`
	MsgID       string  `json:"msg_id"`
	Kind        Kind    `json:"msg_type"`
	SenderID    string  `json:"sender_id"`
	SenderAddr  string  `json:"sender_addr"`
	TimestampMs int64   `json:"timestamp_ms"`
	TTL         int     `json:"ttl"`
	Payload     Payload `json:"payload"`
}

// Encode serialises the envelope to one JSON datagram.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// wireEnvelope is the decode intermediate: payload stays raw until the
// kind is known.
type wireEnvelope struct {
	Version     int             `json:"version"`
	MsgID       string          `json:"msg_id"`
	Kind        Kind            `json:"msg_type"`
	SenderID    string          `json:"sender_id"`
	SenderAddr  string          `json:"sender_addr"`
	TimestampMs int64           `json:"timestamp_ms"`
	TTL         int             `json:"ttl"`
	Payload     json.RawMessage `json:"payload"`
}

// Decode parses one datagram. Any failure wraps ErrMalformed and the
// frame must be dropped. Absent optional members take their defaults:
// version 1, ttl 0, timestamp_ms 0, empty sender fields, empty
// payload, and a fresh msg_id.
func Decode(data []byte) (*Envelope, error) {
	w := wireEnvelope{Version: 1}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errBadFrame
	}
	if !knownKinds[w.Kind] {
		return nil, errUnknownKind
	}
	p, err := decodePayload(w.Kind, w.Payload)
	if err != nil {
		return nil, err
	}
	if w.MsgID == "" {
		w.MsgID = NewMsgID()
	}
	return &Envelope{
		Version:     w.Version,
		MsgID:       w.MsgID,
		Kind:        w.Kind,
		SenderID:    w.SenderID,
		SenderAddr:  w.SenderAddr,
		TimestampMs: w.TimestampMs,
		TTL:         w.TTL,
		Payload:     p,
	}, nil
}

// decodePayload parses the raw payload for kind. Members the sender
// left out keep their protocol defaults: max_peers 20, topic "news",
// zero everywhere else.
func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	switch kind {
	case KindHello:
		var p HelloPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errBadPayload
		}
		return p, nil
	case KindGetPeers:
		p := GetPeersPayload{MaxPeers: 20}
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errBadPayload
		}
		return p, nil
	case KindPeersList:
		var p PeersListPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errBadPayload
		}
		return p, nil
	case KindGossip:
		p := GossipPayload{Topic: "news"}
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errBadPayload
		}
		return p, nil
	case KindPing:
		var p PingPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errBadPayload
		}
		return p, nil
	case KindPong:
		var p PongPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errBadPayload
		}
		return p, nil
	case KindIHave:
		var p IHavePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errBadPayload
		}
		return p, nil
	case KindIWant:
		var p IWantPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errBadPayload
		}
		return p, nil
	}
	return nil, errUnknownKind
}

// NewMsgID returns a fresh 128-bit hex message id.
func NewMsgID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func newEnvelope(kind Kind, senderID, senderAddr string, p Payload) *Envelope {
	return &Envelope{
		Version:     1,
		MsgID:       NewMsgID(),
		Kind:        kind,
		SenderID:    senderID,
		SenderAddr:  senderAddr,
		TimestampMs: nowMs(),
		TTL:         8,
		Payload:     p,
	}
}

// NewHello builds a HELLO. The pow token may be nil.
func NewHello(senderID, senderAddr string, pow *PoWToken) *Envelope {
	return newEnvelope(KindHello, senderID, senderAddr, HelloPayload{
		Capabilities: []string{"udp", "json"},
		Pow:          pow,
	})
}

func NewGetPeers(senderID, senderAddr string, maxPeers int) *Envelope {
	return newEnvelope(KindGetPeers, senderID, senderAddr, GetPeersPayload{MaxPeers: maxPeers})
}

func NewPeersList(senderID, senderAddr string, peers []PeerEntry) *Envelope {
	return newEnvelope(KindPeersList, senderID, senderAddr, PeersListPayload{Peers: peers})
}

// NewGossip builds a GOSSIP envelope. A non-empty msgID preserves the
// id across forwards; empty means a fresh injection. A zero originTS
// is stamped with the current wall clock.
func NewGossip(senderID, senderAddr, topic, data, originID string, ttl int, originTS int64, msgID string) *Envelope {
	if msgID == "" {
		msgID = NewMsgID()
	}
	if originTS == 0 {
		originTS = nowMs()
	}
	e := newEnvelope(KindGossip, senderID, senderAddr, GossipPayload{
		Topic:             topic,
		Data:              data,
		OriginID:          originID,
		OriginTimestampMs: originTS,
	})
	e.MsgID = msgID
	e.TTL = ttl
	return e
}

// NewPing builds a PING with a fresh correlation id.
func NewPing(senderID, senderAddr string, seq int) *Envelope {
	return newEnvelope(KindPing, senderID, senderAddr, PingPayload{
		PingID: NewMsgID(),
		Seq:    seq,
	})
}

func NewPong(senderID, senderAddr, pingID string, seq int) *Envelope {
	return newEnvelope(KindPong, senderID, senderAddr, PongPayload{PingID: pingID, Seq: seq})
}

// NewIHave advertises ids, truncated to maxIDs.
func NewIHave(senderID, senderAddr string, ids []string, maxIDs int) *Envelope {
	if len(ids) > maxIDs {
		ids = ids[:maxIDs]
	}
	return newEnvelope(KindIHave, senderID, senderAddr, IHavePayload{IDs: ids, MaxIDs: maxIDs})
}

func NewIWant(senderID, senderAddr string, ids []string) *Envelope {
	return newEnvelope(KindIWant, senderID, senderAddr, IWantPayload{IDs: ids})
}

// shortID is the message id prefix used in log lines.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
