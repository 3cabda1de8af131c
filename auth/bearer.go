package auth

import (
	"fmt"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// ErrMalformedHeader reports an Authorization header that is not a bearer
// credential.
var ErrMalformedHeader = fmt.Errorf("%w: malformed bearer authorization header", ErrUnauthorized)

// BearerToken extracts the bearer token from r. It returns "" and no error
// when no Authorization header is present.
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", nil
	}
	if len(h) <= len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrMalformedHeader
	}
	tok := strings.TrimSpace(h[len(bearerPrefix):])
	if tok == "" {
		return "", ErrMalformedHeader
	}
	return tok, nil
}

// Challenge builds a WWW-Authenticate Bearer challenge. Realm and
// resourceMetadata are omitted when empty; errCode and description are
// omitted when errCode is empty.
//
//	Bearer realm="<realm>", resource_metadata="<url>", error="...", error_description="..."
func Challenge(realm, resourceMetadata, errCode, description string) string {
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace
	var pieces []string
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	if resourceMetadata != "" {
		pieces = append(pieces, fmt.Sprintf(`resource_metadata="%s"`, esc(resourceMetadata)))
	}
	if errCode != "" {
		pieces = append(pieces, fmt.Sprintf(`error="%s"`, esc(errCode)))
		if description != "" {
			pieces = append(pieces, fmt.Sprintf(`error_description="%s"`, esc(description)))
		}
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}
