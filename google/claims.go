package google

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the fields of a Google ID token this service reads.
type Claims struct {
	jwt.RegisteredClaims
	Email         string    `json:"email"`
	EmailVerified boolClaim `json:"email_verified"`
	Name          string    `json:"name"`
	Picture       string    `json:"picture"`
	HostedDomain  string    `json:"hd,omitempty"`
}

// boolClaim accepts both JSON booleans and the quoted form some Google tokens carry.
type boolClaim struct {
	Value bool
	Set   bool
}

func (b *boolClaim) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*b = boolClaim{}
	case bool:
		*b = boolClaim{Value: v, Set: true}
	case string:
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("email_verified: %w", err)
		}
		*b = boolClaim{Value: parsed, Set: true}
	default:
		return fmt.Errorf("email_verified: unexpected type %T", raw)
	}
	return nil
}

func (b boolClaim) MarshalJSON() ([]byte, error) {
	if !b.Set {
		return []byte("null"), nil
	}
	return json.Marshal(b.Value)
}
