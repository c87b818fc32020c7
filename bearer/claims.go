package bearer

import (
	"context"
	"fmt"
	"strings"

	"github.com/upb/identity-gateway/models"
)

// ClaimsMapper turns validated claims into a principal using configurable claim names.
type ClaimsMapper struct {
	userNameClaim string
	groupsClaim   string
}

// NewClaimsMapper creates a mapper reading the user name and groups from the given claims.
func NewClaimsMapper(userNameClaim, groupsClaim string) *ClaimsMapper {
	return &ClaimsMapper{
		userNameClaim: userNameClaim,
		groupsClaim:   groupsClaim,
	}
}

// Map builds the principal. The group claim may be absent, a single string or
// a list. Non-string list entries are rendered with fmt.Sprint; nil and empty
// entries are dropped.
func (m *ClaimsMapper) Map(vc *ValidatedClaims) (models.Principal, error) {
	name, _ := vc.Claims[m.userNameClaim].(string)
	if strings.TrimSpace(name) == "" {
		return models.Principal{}, fmt.Errorf("%w: %s", ErrMissingSubject, m.userNameClaim)
	}

	var groups []string
	switch raw := vc.Claims[m.groupsClaim].(type) {
	case string:
		groups = append(groups, raw)
	case []interface{}:
		for _, g := range raw {
			if g == nil {
				continue
			}
			if s := fmt.Sprint(g); s != "" {
				groups = append(groups, s)
			}
		}
	case []string:
		groups = append(groups, raw...)
	}

	return models.NewPrincipal(name, models.SourceBearer, groups), nil
}

// Authenticator validates a bearer token and maps it to a principal.
type Authenticator struct {
	validator *Validator
	mapper    *ClaimsMapper
}

// NewAuthenticator combines a validator and a mapper.
func NewAuthenticator(validator *Validator, mapper *ClaimsMapper) *Authenticator {
	return &Authenticator{validator: validator, mapper: mapper}
}

// AuthenticateToken returns the principal carried by raw.
func (a *Authenticator) AuthenticateToken(ctx context.Context, raw string) (models.Principal, error) {
	claims, err := a.validator.Validate(ctx, raw)
	if err != nil {
		return models.Principal{}, err
	}
	return a.mapper.Map(claims)
}
