// ABOUTME: Module is the per-user olm identity: account plus peer sessions
// ABOUTME: Constructed fresh or restored from olm pickles keyed by the account secret

package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"maunium.net/go/mautrix/crypto/goolm/account"
	"maunium.net/go/mautrix/crypto/goolm/session"
	"maunium.net/go/mautrix/crypto/olm"
	"maunium.net/go/mautrix/id"

	"github.com/2389/comm-core/internal/store"
)

// DefaultOneTimeKeys is how many one-time keys a fresh account starts with.
const DefaultOneTimeKeys = 50

// ErrWrongSecret is returned when a pickle does not verify under the given secret.
var ErrWrongSecret = errors.New("wrong secret key or corrupted pickle")

// Module is one user's crypto identity. It is not safe for concurrent use;
// callers confine it to a single goroutine.
type Module struct {
	userID   string
	account  *account.Account
	sessions map[string]olm.Session
}

// New constructs a fresh identity with oneTimeKeys unpublished one-time keys.
func New(userID string, oneTimeKeys int) (*Module, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	acct, err := account.NewAccount()
	if err != nil {
		return nil, fmt.Errorf("creating olm account: %w", err)
	}
	if oneTimeKeys > 0 {
		if err := acct.GenOneTimeKeys(uint(oneTimeKeys)); err != nil {
			return nil, fmt.Errorf("generating one-time keys: %w", err)
		}
	}
	return &Module{
		userID:   userID,
		account:  acct,
		sessions: make(map[string]olm.Session),
	}, nil
}

// Restore rebuilds an identity from pickles encrypted under secretKey.
func Restore(userID, secretKey string, persist store.OlmPersist) (*Module, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if persist.IsEmpty() {
		return nil, errors.New("restore: persisted state is empty")
	}
	key := []byte(secretKey)

	acct, err := unpickle(func() (*account.Account, error) {
		return account.AccountFromPickled(persist.Account, key)
	})
	if err != nil {
		return nil, fmt.Errorf("restoring account: %w", err)
	}

	sessions := make(map[string]olm.Session, len(persist.Sessions))
	for target, data := range persist.Sessions {
		s, err := unpickle(func() (*session.OlmSession, error) {
			return session.OlmSessionFromPickled(data, key)
		})
		if err != nil {
			return nil, fmt.Errorf("restoring session with %s: %w", target, err)
		}
		sessions[target] = s
	}

	return &Module{userID: userID, account: acct, sessions: sessions}, nil
}

// unpickle runs fn, mapping MAC failures to ErrWrongSecret. Truncated input
// makes goolm index out of range, so a panic is reported as a corrupt pickle.
func unpickle[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", olm.ErrInputToSmall, r)
		}
	}()
	v, err = fn()
	if errors.Is(err, olm.ErrBadMAC) {
		return v, fmt.Errorf("%w: %w", ErrWrongSecret, err)
	}
	return v, err
}

// Persist pickles the account and every session under secretKey.
func (m *Module) Persist(secretKey string) (store.OlmPersist, error) {
	key := []byte(secretKey)
	acct, err := m.account.Pickle(key)
	if err != nil {
		return store.OlmPersist{}, fmt.Errorf("pickling account: %w", err)
	}
	sessions := make(map[string][]byte, len(m.sessions))
	for target, s := range m.sessions {
		data, err := s.Pickle(key)
		if err != nil {
			return store.OlmPersist{}, fmt.Errorf("pickling session with %s: %w", target, err)
		}
		sessions[target] = data
	}
	return store.OlmPersist{Account: acct, Sessions: sessions}, nil
}

// UserID returns the user the identity belongs to.
func (m *Module) UserID() string {
	return m.userID
}

// IdentityKeys returns {"curve25519": ..., "ed25519": ...} as JSON.
func (m *Module) IdentityKeys() (string, error) {
	data, err := m.account.IdentityKeysJSON()
	if err != nil {
		return "", fmt.Errorf("exporting identity keys: %w", err)
	}
	return string(data), nil
}

// OneTimeKeys returns the unpublished keys as {"curve25519": {keyID: key, ...}}.
func (m *Module) OneTimeKeys() (string, error) {
	keys, err := m.account.OneTimeKeys()
	if err != nil {
		return "", fmt.Errorf("exporting one-time keys: %w", err)
	}
	data, err := json.Marshal(map[string]map[string]id.Curve25519{"curve25519": keys})
	if err != nil {
		return "", fmt.Errorf("encoding one-time keys: %w", err)
	}
	return string(data), nil
}

// GenerateOneTimeKeys adds n keys to the unpublished pool. The account keeps
// at most account.MaxOneTimeKeys, dropping the oldest.
func (m *Module) GenerateOneTimeKeys(n int) error {
	if n <= 0 {
		return nil
	}
	return m.account.GenOneTimeKeys(uint(n))
}

// MarkKeysAsPublished stops the current one-time keys from being exported again.
func (m *Module) MarkKeysAsPublished() {
	m.account.MarkKeysAsPublished()
}

// CreateOutboundSession starts a session with targetUserID from their identity
// and one-time keys, replacing any existing one.
func (m *Module) CreateOutboundSession(targetUserID, theirIdentityKey, theirOneTimeKey string) error {
	s, err := m.account.NewOutboundSession(id.Curve25519(theirIdentityKey), id.Curve25519(theirOneTimeKey))
	if err != nil {
		return fmt.Errorf("outbound session with %s: %w", targetUserID, err)
	}
	m.sessions[targetUserID] = s
	return nil
}

// CreateInboundSession accepts a pre-key message from targetUserID and
// consumes the one-time key it used.
func (m *Module) CreateInboundSession(targetUserID, theirIdentityKey, preKeyMessage string) error {
	identity := id.Curve25519(theirIdentityKey)
	s, err := m.account.NewInboundSessionFrom(&identity, preKeyMessage)
	if err != nil {
		return fmt.Errorf("inbound session with %s: %w", targetUserID, err)
	}
	if err := m.account.RemoveOneTimeKeys(s); err != nil {
		return fmt.Errorf("removing used one-time key: %w", err)
	}
	m.sessions[targetUserID] = s
	return nil
}

// Encrypt encrypts plaintext for targetUserID.
func (m *Module) Encrypt(targetUserID string, plaintext []byte) (id.OlmMsgType, string, error) {
	s, ok := m.sessions[targetUserID]
	if !ok {
		return 0, "", fmt.Errorf("no session with %s", targetUserID)
	}
	msgType, ciphertext, err := s.Encrypt(plaintext)
	if err != nil {
		return 0, "", fmt.Errorf("encrypting for %s: %w", targetUserID, err)
	}
	return msgType, string(ciphertext), nil
}

// Decrypt decrypts a message received from targetUserID.
func (m *Module) Decrypt(targetUserID string, msgType id.OlmMsgType, ciphertext string) ([]byte, error) {
	s, ok := m.sessions[targetUserID]
	if !ok {
		return nil, fmt.Errorf("no session with %s", targetUserID)
	}
	plaintext, err := s.Decrypt(ciphertext, msgType)
	if err != nil {
		return nil, fmt.Errorf("decrypting from %s: %w", targetUserID, err)
	}
	return plaintext, nil
}

// SessionTargets returns the sorted user IDs with an open session.
func (m *Module) SessionTargets() []string {
	return slices.Sorted(maps.Keys(m.sessions))
}
