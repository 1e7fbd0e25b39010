package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	base = zap.NewNop()
	log  = base.Sugar()
)

// New 레벨 문자열로 zap 로거 생성
// "production" 은 JSON 인코더 + info 레벨, 그 외는 개발용 콘솔 인코더
func New(level string) (*zap.Logger, error) {
	var zapConfig zap.Config

	if level == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(parseLevel(level))

	return zapConfig.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init 전역 로거 초기화
func Init(level string) {
	l, err := New(level)
	if err != nil {
		panic(err)
	}
	Set(l)
}

// Set 전역 로거 교체 (테스트에서 zaptest 로거 주입용)
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	log = l.Sugar()
}

// L 서비스에 주입할 구조화 로거
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Named 컴포넌트 이름이 붙은 하위 로거
func Named(name string) *zap.Logger {
	return L().Named(name)
}

func sugar() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Sync 로거 플러시
func Sync() {
	_ = sugar().Sync()
}

// Debug 디버그 로그
func Debug(msg string, keysAndValues ...interface{}) {
	sugar().Debugw(msg, keysAndValues...)
}

// Info 정보 로그
func Info(msg string, keysAndValues ...interface{}) {
	sugar().Infow(msg, keysAndValues...)
}

// Warn 경고 로그
func Warn(msg string, keysAndValues ...interface{}) {
	sugar().Warnw(msg, keysAndValues...)
}

// Error 에러 로그
func Error(msg string, keysAndValues ...interface{}) {
	sugar().Errorw(msg, keysAndValues...)
}

// Fatal 치명적 에러 로그 (프로그램 종료)
func Fatal(msg string, keysAndValues ...interface{}) {
	sugar().Fatalw(msg, keysAndValues...)
}
