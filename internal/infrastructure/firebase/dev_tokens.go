package firebase

import (
	"context"
	"fmt"
)

// StaticTokenVerifier accepts a fixed token-to-user table. It stands in for
// Firebase in local development and in tests.
type StaticTokenVerifier struct {
	tokens map[string]string
}

func NewStaticTokenVerifier(tokens map[string]string) *StaticTokenVerifier {
	copied := make(map[string]string, len(tokens))
	for token, uid := range tokens {
		copied[token] = uid
	}
	return &StaticTokenVerifier{tokens: copied}
}

func (v *StaticTokenVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	uid, ok := v.tokens[token]
	if !ok || uid == "" {
		return "", fmt.Errorf("unknown token")
	}
	return uid, nil
}

// ChainVerifier tries each verifier in order and returns the first match.
type ChainVerifier []interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

func (c ChainVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	lastErr := fmt.Errorf("no token verifier configured")
	for _, v := range c {
		uid, err := v.VerifyToken(ctx, token)
		if err == nil {
			return uid, nil
		}
		lastErr = err
	}
	return "", lastErr
}
