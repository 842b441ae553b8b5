package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"logship/internal/config"
	"logship/internal/logger"
	"logship/internal/metrics"
	"logship/internal/server"
	"logship/internal/timecache"
	"logship/internal/worker"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
)

func main() {
	os.Exit(run())
}

func run() int {

	// ====================================================================
	// Flags
	// ====================================================================
	//
	//   --config   YAML 설정 파일. 없으면 환경변수에서 읽는다.
	//   --env-file .env 파일. 이미 설정된 환경변수는 덮어쓰지 않는다.
	//   --addr     intake 서버 주소 (HTTP_ADDR 보다 우선)
	//   --url      전송 endpoint (LOGS_URL 보다 우선)
	// ====================================================================
	configPath := flag.String("config", "", "path to YAML config file")
	envFile := flag.String("env-file", "", "path to .env file")
	addr := flag.String("addr", "", "intake listen address")
	url := flag.String("url", "", "log API endpoint")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			zlog.Error().Err(err).Str("path", *envFile).Msg("failed to load env file")
			return 1
		}
	} else {
		// 기본 .env 는 있으면 읽고 없으면 무시
		_ = godotenv.Load()
	}

	// ====================================================================
	// Config
	// ====================================================================
	var (
		cfg config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load(os.LookupEnv)
	}
	if err != nil {
		zlog.Error().Err(err).Msg("failed to load config")
		return 1
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *url != "" {
		cfg.URL = *url
	}

	log := logger.Init(cfg)

	// ====================================================================
	// Pipeline
	// ====================================================================
	//
	// 구성 요소:
	//  - 이벤트 큐: Ingest 호출자와 Batcher 사이의 bounded queue
	//  - Batcher: BufferSize / BufferInterval 기준으로 배치 생성
	//  - 워커 풀: Workers 개 goroutine 이 배치를 HTTP POST
	//
	// 설정 오류(URL 없음, 인증 정보 없음)는 여기서 바로 종료한다.
	// ====================================================================
	m := metrics.New()
	p, err := worker.New(cfg, worker.Options{Logger: &log, Metrics: m})
	if err != nil {
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	timecache.Start(ctx)

	p.Start()

	// ====================================================================
	// Metrics
	// ====================================================================
	reg, err := metrics.Register(prometheus.NewRegistry(), m, p)
	if err != nil {
		log.Error().Err(err).Msg("failed to register metrics")
		_ = p.Stop()
		return 1
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// ====================================================================
	// HTTP
	// ====================================================================
	//
	// 엔드포인트:
	//  - /collect        : 로그 이벤트 수집
	//  - /metrics        : Prometheus
	//  - /debug/counters : 카운터 텍스트 덤프
	//  - /health         : Running 이 아니면 503
	// ====================================================================
	h := server.NewHandler(cfg, m, p)

	mux := http.NewServeMux()
	mux.HandleFunc("/collect", h.HandleCollect)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/counters", h.HandleMetrics)
	mux.HandleFunc("/health", h.HandleHealth)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("intake server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ====================================================================
	// Graceful Shutdown
	// ====================================================================
	//
	// SIGTERM / SIGINT 수신 시:
	//   1) HTTP 서버 종료 (새 이벤트 유입 차단)
	//   2) 파이프라인 Stop (남은 이벤트 전송, MaxFlushTime 상한)
	//
	// 2) 에서 deadline 을 넘기면 exit code 1.
	// ====================================================================
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	code := 0
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err, ok := <-serveErr:
		if ok {
			log.Error().Err(err).Msg("intake server terminated")
			code = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("intake server shutdown")
	}
	shutdownCancel()

	if err := p.Stop(); err != nil {
		code = 1
	}

	log.Info().Int("exit_code", code).Msg("shutdown complete")
	return code
}
