// Package openpgp implements signature verification against a keyring
// loaded once at construction time, entirely in-process. No subprocess
// is spawned and no network I/O is performed during verification.
package openpgp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"

	"github.com/Apt-Gate/Aptgate/internal/domain/verify"
)

// Verifier validates OpenPGP signatures against a fixed keyring. Safe
// for concurrent use: the keyring is read-only after construction and
// verification touches no shared mutable state.
type Verifier struct {
	keyring openpgp.EntityList
}

// New loads a keyring from an armored or binary OpenPGP public-keyring
// file at path.
func New(path string) (*Verifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring %s: %w", path, err)
	}
	defer f.Close()

	keyring, err := readKeyring(f)
	if err != nil {
		return nil, fmt.Errorf("read keyring %s: %w", path, err)
	}
	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring %s contains no keys", path)
	}
	return &Verifier{keyring: keyring}, nil
}

// Keys returns the key IDs and identities loaded into the keyring, for
// read-only introspection (e.g. a health or admin endpoint). The
// keyring itself is never mutated at runtime: key import/generation is
// out of scope.
func (v *Verifier) Keys() []KeyInfo {
	infos := make([]KeyInfo, 0, len(v.keyring))
	for _, entity := range v.keyring {
		info := KeyInfo{}
		if entity.PrimaryKey != nil {
			info.KeyID = entity.PrimaryKey.KeyIdString()
			info.CreationTime = entity.PrimaryKey.CreationTime.UTC()
		}
		for _, ident := range entity.Identities {
			info.UserIDs = append(info.UserIDs, ident.Name)
		}
		infos = append(infos, info)
	}
	return infos
}

// KeyInfo is a read-only summary of one keyring entry.
type KeyInfo struct {
	KeyID        string
	UserIDs      []string
	CreationTime time.Time
}

func readKeyring(f *os.File) (openpgp.EntityList, error) {
	if keyring, err := openpgp.ReadArmoredKeyRing(f); err == nil {
		return keyring, nil
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	return openpgp.ReadKeyRing(f)
}

// VerifyInRelease implements verify.SignatureVerifier. InRelease files
// are inline (clearsigned) OpenPGP messages: the signed content and its
// signature travel together in one document.
func (v *Verifier) VerifyInRelease(ctx context.Context, data []byte) (verify.SignatureResult, error) {
	select {
	case <-ctx.Done():
		return verify.SignatureResult{}, ctx.Err()
	default:
	}

	block, _ := clearsign.Decode(data)
	if block == nil {
		return verify.SignatureResult{Valid: false, ErrorMessage: "not a clearsigned document"}, nil
	}

	entity, err := openpgp.CheckDetachedSignature(v.keyring, bytes.NewReader(block.Bytes), block.ArmoredSignature.Body, nil)
	if err != nil {
		return verify.SignatureResult{Valid: false, ErrorMessage: err.Error()}, nil
	}

	return entityResult(entity), nil
}

// VerifyDetached implements verify.SignatureVerifier. It checks a detached
// pair such as Release/Release.gpg, where the signature travels as a separate
// file from the signed content.
func (v *Verifier) VerifyDetached(ctx context.Context, content, signature []byte) (verify.SignatureResult, error) {
	select {
	case <-ctx.Done():
		return verify.SignatureResult{}, ctx.Err()
	default:
	}

	entity, err := openpgp.CheckDetachedSignature(v.keyring, bytes.NewReader(content), bytes.NewReader(signature), nil)
	if err != nil {
		return verify.SignatureResult{Valid: false, ErrorMessage: err.Error()}, nil
	}
	return entityResult(entity), nil
}

func entityResult(entity *openpgp.Entity) verify.SignatureResult {
	result := verify.SignatureResult{
		Valid:      true,
		TrustLevel: "ultimate",
	}
	if entity == nil {
		return result
	}
	if entity.PrimaryKey != nil {
		result.KeyID = entity.PrimaryKey.KeyIdString()
	}
	for _, ident := range entity.Identities {
		if ident.SelfSignature != nil && !ident.SelfSignature.CreationTime.IsZero() {
			result.SignatureDate = ident.SelfSignature.CreationTime.UTC().Format(time.RFC3339)
			break
		}
	}
	return result
}

var _ verify.SignatureVerifier = (*Verifier)(nil)
