package server

import (
	"net"
	"net/http"
	"strings"
)

// ------------------------------------------------------------
// 요청자 IP 추출
//
// intake 서버가 로드밸런서/프록시 뒤에 있으면 RemoteAddr 는 프록시 주소다.
// 프록시가 붙여 주는 헤더에서 public IP 를 먼저 찾고,
// 없으면 RemoteAddr 를 그대로 쓴다 (같은 VPC 안의 서비스가 직접 보내는 경우).
// ------------------------------------------------------------

// isPublicIP 는 private / loopback / link-local 이 아니면 true.
func isPublicIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() {
		return false
	}
	return !ip.IsLinkLocalUnicast() && !ip.IsLinkLocalMulticast()
}

func parseIP(s string) net.IP {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return net.ParseIP(s)
}

// stripPort 는 "host:port" 와 "[v6]:port" 모두에서 host 만 남긴다.
// 포트가 없으면 그대로 반환.
func stripPort(s string) string {
	if host, _, err := net.SplitHostPort(s); err == nil {
		return host
	}
	// "2404:6800::200e:44321" 처럼 괄호 없는 IPv6+포트
	if net.ParseIP(s) == nil {
		if i := strings.LastIndex(s, ":"); i != -1 {
			return s[:i]
		}
	}
	return s
}

// clientIP
//
// 우선순위:
//  1. X-Forwarded-For → 왼쪽부터 첫 번째 public IP
//  2. CloudFront-Viewer-Address → 포트 제거
//  3. RemoteAddr (private 이어도 사용)
//
// 아무것도 파싱되지 않으면 "".
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := parseIP(part); isPublicIP(ip) {
				return ip.String()
			}
		}
	}

	if cf := r.Header.Get("CloudFront-Viewer-Address"); cf != "" {
		if ip := parseIP(stripPort(cf)); isPublicIP(ip) {
			return ip.String()
		}
	}

	if ip := parseIP(stripPort(r.RemoteAddr)); ip != nil {
		return ip.String()
	}
	return ""
}
