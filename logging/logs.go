package logging

//
//Copyright 2018 Telenor Digital AS
//
//Licensed under the Apache License, Version 2.0 (the "License");
//you may not use this file except in compliance with the License.
//You may obtain a copy of the License at
//
//http://www.apache.org/licenses/LICENSE-2.0
//
//Unless required by applicable law or agreed to in writing, software
//distributed under the License is distributed on an "AS IS" BASIS,
//WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//See the License for the specific language governing permissions and
//limitations under the License.
//
import (
	"log/syslog"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DebugLevel is the most detailed logging level. It will emit all log levels.
	DebugLevel uint = iota
	// InfoLevel is the log level that will log info, warning and errors
	InfoLevel
	// WarningLevel is the log level that will log warnings and errors
	WarningLevel
	// ErrorLevel is the log level that only logs errors
	ErrorLevel
)

const syslogTag = "tsch"

var (
	mutex   = &sync.Mutex{}
	level   = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	sugar   *zap.SugaredLogger
	dropped atomic.Uint64
)

func init() {
	EnableStderr(true)
	SetLogLevel(WarningLevel)
}

func zapLevel(l uint) zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarningLevel:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// SetLogLevel sets the logging level
func SetLogLevel(l uint) {
	level.SetLevel(zapLevel(l))
}

func setCore(core zapcore.Core) {
	mutex.Lock()
	defer mutex.Unlock()
	sugar = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

func logger() *zap.SugaredLogger {
	mutex.Lock()
	defer mutex.Unlock()
	return sugar
}

// EnableSyslog enables syslog logging. Each level goes to the matching
// syslog priority.
func EnableSyslog() {
	priorities := []struct {
		priority syslog.Priority
		level    zapcore.Level
	}{
		{syslog.LOG_DEBUG, zapcore.DebugLevel},
		{syslog.LOG_INFO, zapcore.InfoLevel},
		{syslog.LOG_WARNING, zapcore.WarnLevel},
		{syslog.LOG_ERR, zapcore.ErrorLevel},
	}
	config := zap.NewProductionEncoderConfig()
	// Syslog includes the time stamp so we just need the source file
	config.TimeKey = ""
	encoder := zapcore.NewConsoleEncoder(config)

	var cores []zapcore.Core
	for _, p := range priorities {
		w, err := syslog.New(p.priority|syslog.LOG_DAEMON, syslogTag)
		if err != nil {
			Error("Unable to set up syslog: %v", err)
			return
		}
		lvl := p.level
		enabler := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return level.Enabled(l) && (l == lvl || (lvl == zapcore.ErrorLevel && l > lvl))
		})
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(w), enabler))
	}
	setCore(zapcore.NewTee(cores...))
}

// EnableStderr enables logging to stderr. Levels are colored unless plain
// text is requested.
func EnableStderr(plainText bool) {
	config := zap.NewDevelopmentEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	if plainText {
		config.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		config.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	setCore(zapcore.NewCore(zapcore.NewConsoleEncoder(config), zapcore.Lock(os.Stderr), level))
}

// Debug adds a debug-level log message to the log. If the log level is set
// higher than DebugLevel the message will be discarded.
func Debug(format string, v ...interface{}) {
	logger().Debugf(format, v...)
}

// Info adds an info-level log message to the log if the log level is set
// to InfoLevel or lower.
func Info(format string, v ...interface{}) {
	logger().Infof(format, v...)
}

// Warning adds a warning-level log message if the log level is set to
// WarningLevel or lower.
func Warning(format string, v ...interface{}) {
	logger().Warnf(format, v...)
}

// Error adds an error-level log message to the log.
func Error(format string, v ...interface{}) {
	logger().Errorf(format, v...)
}

// RecordsDropped counts log records that were lost before they reached the
// logger, typically because the slot log ring was full.
func RecordsDropped(n uint64) {
	dropped.Add(n)
}

// Dropped returns the number of lost log records
func Dropped() uint64 {
	return dropped.Load()
}
