package config

import "fmt"

// 인증 정보 환경변수 / 헤더 이름.
const (
	EnvLicenseKey    = "NEW_RELIC_LICENSE_KEY"
	EnvAPIKey        = "NEW_RELIC_API_KEY"
	HeaderLicenseKey = "X-License-Key"
	HeaderAPIKey     = "Api-Key"
)

// CredentialKind 는 인증 방식 구분.
type CredentialKind int

const (
	LicenseKey CredentialKind = iota + 1
	APIKey
)

func (k CredentialKind) String() string {
	switch k {
	case LicenseKey:
		return "license_key"
	case APIKey:
		return "api_key"
	default:
		return "unknown"
	}
}

// Credential 은 요청마다 붙는 인증 헤더 하나.
// 시작 시 한 번 결정되고 파이프라인 수명 동안 바뀌지 않는다.
type Credential struct {
	Kind    CredentialKind
	Header  string
	Value   string
	FromEnv bool // 환경변수에서 읽었는지 (진단 로그용)
}

// ResolveCredential
//
// 우선순위:
//  1. 설정의 LicenseKey
//  2. 설정의 APIKey
//  3. env NEW_RELIC_LICENSE_KEY
//  4. env NEW_RELIC_API_KEY
//
// 어느 것도 없으면 ErrInvalid.
func ResolveCredential(c Config, lookup LookupFunc) (Credential, error) {
	switch {
	case c.LicenseKey != "":
		return Credential{Kind: LicenseKey, Header: HeaderLicenseKey, Value: c.LicenseKey}, nil
	case c.APIKey != "":
		return Credential{Kind: APIKey, Header: HeaderAPIKey, Value: c.APIKey}, nil
	}

	if lookup != nil {
		if v, ok := lookup(EnvLicenseKey); ok && v != "" {
			return Credential{Kind: LicenseKey, Header: HeaderLicenseKey, Value: v, FromEnv: true}, nil
		}
		if v, ok := lookup(EnvAPIKey); ok && v != "" {
			return Credential{Kind: APIKey, Header: HeaderAPIKey, Value: v, FromEnv: true}, nil
		}
	}
	return Credential{}, fmt.Errorf("%w: license key or api key must be specified", ErrInvalid)
}
