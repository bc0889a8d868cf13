package ledger

import (
	"encoding/json"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/maltlabs/malt-bridge/internal/domain"
)

// Treasury holds the custodial signing credential. Loaded once at startup,
// read-only afterwards, safe for concurrent signing use. The private key is
// reachable only through the Signer callback.
type Treasury struct {
	key solana.PrivateKey
	pub solana.PublicKey
}

// LoadTreasury parses key material from either a base58 string or a
// solana-keygen style JSON byte array.
func LoadTreasury(material string) (*Treasury, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return nil, domain.NewError(domain.KindConfigurationMissing, "treasury private key is not set")
	}

	var key solana.PrivateKey
	if strings.HasPrefix(material, "[") {
		var raw []uint16
		if err := json.Unmarshal([]byte(material), &raw); err != nil {
			return nil, domain.WrapError(domain.KindConfigurationMissing, "treasury key array is not valid JSON", err)
		}
		key = make(solana.PrivateKey, len(raw))
		for i, b := range raw {
			if b > 255 {
				return nil, domain.Errorf(domain.KindConfigurationMissing, "treasury key byte %d out of range", i)
			}
			key[i] = byte(b)
		}
	} else {
		parsed, err := solana.PrivateKeyFromBase58(material)
		if err != nil {
			return nil, domain.WrapError(domain.KindConfigurationMissing, "treasury key is not valid base58", err)
		}
		key = parsed
	}

	if len(key) != 64 {
		return nil, domain.Errorf(domain.KindConfigurationMissing, "treasury key has %d bytes, want 64", len(key))
	}
	return &Treasury{key: key, pub: key.PublicKey()}, nil
}

// PublicKey returns the treasury's public address.
func (t *Treasury) PublicKey() solana.PublicKey { return t.pub }

// Signer returns the callback used when signing outbound transactions.
func (t *Treasury) Signer() func(key solana.PublicKey) *solana.PrivateKey {
	return func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(t.pub) {
			pk := t.key
			return &pk
		}
		return nil
	}
}

// String identifies the treasury without exposing key material.
func (t *Treasury) String() string { return "treasury(" + t.pub.String() + ")" }
