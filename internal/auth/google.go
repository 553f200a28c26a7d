package auth

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/api/idtoken"
)

var (
	ErrInvalidGoogleToken = errors.New("invalid google id token")
	ErrEmailNotVerified   = errors.New("google account email not verified")
)

// GoogleUserInfo Google 계정 프로필
type GoogleUserInfo struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// GoogleAuthenticator Google ID Token 검증기
type GoogleAuthenticator struct {
	clientID string
}

// NewGoogleAuthenticator GoogleAuthenticator 생성
func NewGoogleAuthenticator(clientID string) *GoogleAuthenticator {
	return &GoogleAuthenticator{clientID: clientID}
}

// VerifyIDToken ID Token을 검증하고 프로필을 추출한다.
// 이메일 미확인 계정은 거부한다.
func (g *GoogleAuthenticator) VerifyIDToken(ctx context.Context, idToken string) (*GoogleUserInfo, error) {
	payload, err := idtoken.Validate(ctx, idToken, g.clientID)
	if err != nil {
		return nil, ErrInvalidGoogleToken
	}

	if verified, _ := payload.Claims["email_verified"].(bool); !verified {
		return nil, ErrEmailNotVerified
	}

	email := claimString(payload.Claims, "email")
	if email == "" {
		return nil, ErrInvalidGoogleToken
	}

	name := claimString(payload.Claims, "name")
	if name == "" {
		// 이름 claim이 없으면 이메일 앞부분으로 대체
		name = strings.SplitN(email, "@", 2)[0]
	}

	return &GoogleUserInfo{
		ID:      payload.Subject,
		Email:   email,
		Name:    name,
		Picture: claimString(payload.Claims, "picture"),
	}, nil
}

func claimString(claims map[string]any, key string) string {
	v, _ := claims[key].(string)
	return v
}
