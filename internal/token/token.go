// Package token inspects bearer credentials for expiry. The credential is a
// signed three-segment token; only the exp claim in the middle segment is
// read. The signature is never verified here (that is the backend's job).
package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"smartbin-scan/pkg/apierror"
)

type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

func Inspect(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if strings.Count(raw, ".") != 2 {
		return Claims{}, apierror.New(apierror.KindAuthExpired, "malformed credential", "expected three segments")
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return Claims{}, apierror.New(apierror.KindAuthExpired, "malformed credential", err.Error())
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, apierror.New(apierror.KindAuthExpired, "credential has no expiry", "")
	}

	sub, _ := claims.GetSubject()

	return Claims{Subject: sub, ExpiresAt: exp.Time}, nil
}

func (c Claims) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
