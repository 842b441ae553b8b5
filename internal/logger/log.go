// internal/logger/log.go
package logger

import (
	"io"
	"os"
	"strings"

	"logship/internal/config"

	stdlog "log"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// 프로세스 시작 시 한 번만 호출되는 로거 초기화 함수.
// 설정에 따라 '개발자용 화면' 또는 '운영용 JSON 로그'로 형태를 바꾼다.
//
// [주요 기능]
//
//  1. 로그 포맷 자동 전환:
//     - LOG_PRETTY=true : ConsoleWriter (가독성 위주)
//     - LOG_PRETTY=false: JSON (수집/검색 위주)
//
//  2. 공통 필드: 모든 로그에 "service", "instance" 가 붙는다.
//
//  3. 샘플링: Debug/Info 는 LOG_SAMPLE_N 중 1개만 기록.
//     Warn/Error 는 절대 버리지 않는다. 파이프라인의 drop/전송 실패 진단이
//     모두 Error 레벨이므로 샘플링으로 유실되지 않는다.
//
// 사용 예:
//
//	logger.Init(cfg)
//	log.Info().Msg("shipper started")
func Init(cfg config.Config) zerolog.Logger {
	var w io.Writer = os.Stdout
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	logger := New(cfg, w)
	zerolog.SetGlobalLevel(logger.GetLevel())

	// 전역 Logger 교체
	zlog.Logger = logger

	// 표준 log 패키지도 zerolog 설정을 따르도록 연결
	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)

	return logger
}

// New 는 전역 상태를 건드리지 않고 logger 를 만든다.
// 테스트와 파이프라인 주입용.
func New(cfg config.Config, w io.Writer) zerolog.Logger {
	level := ParseLevel(cfg.LogLevel)

	base := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	if cfg.LogSampleN > 1 {
		return base.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}
	return base
}

// ParseLevel 은 알 수 없는 값이면 info 로 fallback 한다.
func ParseLevel(s string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return l
}
