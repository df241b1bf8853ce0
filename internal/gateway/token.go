package gateway

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const passwordKey = "Password"

// Token signs a request: the scalar parameters plus Password=secret,
// sorted by key, values concatenated, SHA-256 in hex.
func Token(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params)+1)
	values := make(map[string]string, len(params)+1)
	for k, v := range params {
		if k == "Token" {
			continue
		}
		keys = append(keys, k)
		values[k] = v
	}
	keys = append(keys, passwordKey)
	values[passwordKey] = secret
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(values[k])
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyCallbackToken checks the Token of a raw callback body
func VerifyCallbackToken(body []byte, secret string) (bool, error) {
	params, err := scalarParams(body)
	if err != nil {
		return false, err
	}
	got, ok := params["Token"]
	if !ok || got == "" {
		return false, nil
	}
	expected := Token(params, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(got))) == 1, nil
}

// SignBody computes the token for a JSON body the same way the gateway does
func SignBody(body []byte, secret string) (string, error) {
	params, err := scalarParams(body)
	if err != nil {
		return "", err
	}
	return Token(params, secret), nil
}

// scalarParams flattens the top level of a JSON request body into token
// parameters. Nested objects and arrays (Receipt, DATA) are skipped.
func scalarParams(body []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode request for signing: %w", err)
	}

	params := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			params[k] = val
		case json.Number:
			params[k] = val.String()
		case bool:
			if val {
				params[k] = "true"
			} else {
				params[k] = "false"
			}
		}
	}
	return params, nil
}
