package ledger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/canonical"
)

// Checkpoint anchors a chain head outside the chain itself. Publishing
// checkpoints to an external system makes head rollback detectable even
// if the whole store is rewritten consistently.
type Checkpoint struct {
	ChainID  string    `json:"chain_id"`
	HeadHash string    `json:"head_hash"`
	Sequence uint64    `json:"sequence"`
	TakenAt  time.Time `json:"taken_at"`
	MAC      string    `json:"mac"`
}

// CheckpointSigner MACs checkpoints with a per-chain key derived from a
// root secret, so one leaked chain key never exposes the others.
type CheckpointSigner struct {
	rootSecret []byte
}

const minRootSecretLen = 16

// NewCheckpointSigner creates a signer from a root secret.
func NewCheckpointSigner(rootSecret []byte) (*CheckpointSigner, error) {
	if len(rootSecret) < minRootSecretLen {
		return nil, fmt.Errorf("ledger: checkpoint root secret must be at least %d bytes", minRootSecretLen)
	}
	secret := make([]byte, len(rootSecret))
	copy(secret, rootSecret)
	return &CheckpointSigner{rootSecret: secret}, nil
}

func (s *CheckpointSigner) chainKey(chainID string) ([]byte, error) {
	r := hkdf.New(sha256.New, s.rootSecret, []byte("ledger-checkpoint-kdf"), []byte(chainID))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("ledger: checkpoint key derivation failed: %w", err)
	}
	return key, nil
}

// Sign computes the checkpoint MAC over the canonical form of every
// field except the MAC itself.
func (s *CheckpointSigner) Sign(cp Checkpoint) (Checkpoint, error) {
	mac, err := s.mac(cp)
	if err != nil {
		return Checkpoint{}, err
	}
	cp.MAC = mac
	return cp, nil
}

// Verify recomputes the MAC and compares in constant time.
func (s *CheckpointSigner) Verify(cp Checkpoint) (bool, error) {
	expected, err := s.mac(cp)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(cp.MAC)) == 1, nil
}

func (s *CheckpointSigner) mac(cp Checkpoint) (string, error) {
	key, err := s.chainKey(cp.ChainID)
	if err != nil {
		return "", err
	}

	hashable := struct {
		ChainID  string    `json:"chain_id"`
		HeadHash string    `json:"head_hash"`
		Sequence uint64    `json:"sequence"`
		TakenAt  time.Time `json:"taken_at"`
	}{cp.ChainID, cp.HeadHash, cp.Sequence, cp.TakenAt}

	canon, err := canonical.Marshal(hashable)
	if err != nil {
		return "", fmt.Errorf("ledger: checkpoint canonicalization failed: %w", err)
	}

	m := hmac.New(sha256.New, key)
	m.Write(canon)
	return hex.EncodeToString(m.Sum(nil)), nil
}

// Checkpoint captures and signs the current head of chainID.
func (l *Ledger) Checkpoint(ctx context.Context, chainID string, signer *CheckpointSigner) (*Checkpoint, error) {
	if signer == nil {
		return nil, fmt.Errorf("ledger: checkpoint signer is required")
	}
	head, err := l.Head(ctx, chainID)
	if err != nil {
		return nil, err
	}

	cp, err := signer.Sign(Checkpoint{
		ChainID:  head.ChainID,
		HeadHash: head.HeadHash,
		Sequence: head.Version,
		TakenAt:  l.clock().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return &cp, nil
}
