package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrEthical07/goGate/store"
)

const (
	resetSessionVersionV1 = 1
	maxFieldLen           = 65535
)

var (
	ErrResetSessionNotFound  = errors.New("reset session not found")
	ErrResetStoreUnavailable = errors.New("reset store unavailable")
	ErrResetSessionCorrupt   = errors.New("reset session payload corrupt")
)

// ResetSession is one in-flight reset attempt. The session id is the store
// key and is not part of the payload.
type ResetSession struct {
	SubjectID  string
	OTP        string
	ResetToken string
	// ExpiresAt is in unix seconds.
	ExpiresAt int64
}

type ResetSessionStore struct {
	store  store.Store
	prefix string
}

func NewResetSessionStore(backend store.Store, prefix string) *ResetSessionStore {
	if prefix == "" {
		prefix = "prs"
	}
	return &ResetSessionStore{
		store:  backend,
		prefix: prefix,
	}
}

func (s *ResetSessionStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *ResetSessionStore) Save(ctx context.Context, sessionID string, session *ResetSession, ttl time.Duration) error {
	if s == nil || s.store == nil {
		return ErrResetStoreUnavailable
	}

	encoded, err := EncodeResetSession(session)
	if err != nil {
		return err
	}

	if err := s.store.Set(ctx, s.key(sessionID), encoded, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrResetStoreUnavailable, err)
	}
	return nil
}

func (s *ResetSessionStore) Get(ctx context.Context, sessionID string) (*ResetSession, error) {
	if s == nil || s.store == nil {
		return nil, ErrResetStoreUnavailable
	}

	data, err := s.store.Get(ctx, s.key(sessionID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrResetSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrResetStoreUnavailable, err)
	}

	session, err := DecodeResetSession(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResetSessionCorrupt, err)
	}
	return session, nil
}

// Take removes the session and returns it. Only one concurrent caller can
// take a given session.
func (s *ResetSessionStore) Take(ctx context.Context, sessionID string) (*ResetSession, error) {
	if s == nil || s.store == nil {
		return nil, ErrResetStoreUnavailable
	}

	data, err := s.store.Take(ctx, s.key(sessionID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrResetSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrResetStoreUnavailable, err)
	}

	session, err := DecodeResetSession(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResetSessionCorrupt, err)
	}
	return session, nil
}

// EncodeResetSession layout (big endian):
//
//	version u8 | expires_at i64 | len u16 + subject | len u16 + otp | len u16 + reset_token
func EncodeResetSession(session *ResetSession) ([]byte, error) {
	if session == nil {
		return nil, errors.New("nil reset session")
	}

	var buf bytes.Buffer
	buf.WriteByte(resetSessionVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, session.ExpiresAt); err != nil {
		return nil, err
	}
	for _, field := range []string{session.SubjectID, session.OTP, session.ResetToken} {
		if err := writeField(&buf, field); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func DecodeResetSession(data []byte) (*ResetSession, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != resetSessionVersionV1 {
		return nil, fmt.Errorf("unsupported reset session version %d", version)
	}

	session := &ResetSession{}
	if err := binary.Read(reader, binary.BigEndian, &session.ExpiresAt); err != nil {
		return nil, err
	}
	if session.SubjectID, err = readField(reader); err != nil {
		return nil, err
	}
	if session.OTP, err = readField(reader); err != nil {
		return nil, err
	}
	if session.ResetToken, err = readField(reader); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in reset session")
	}
	if session.SubjectID == "" || session.OTP == "" || session.ResetToken == "" {
		return nil, errors.New("reset session missing required field")
	}

	return session, nil
}

func writeField(buf *bytes.Buffer, value string) error {
	if len(value) > maxFieldLen {
		return errors.New("reset session field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(value))); err != nil {
		return err
	}
	buf.WriteString(value)
	return nil
}

func readField(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	value := make([]byte, n)
	if _, err := io.ReadFull(reader, value); err != nil {
		return "", err
	}
	return string(value), nil
}
