package logger

import (
	"fmt"
	"strings"
)

// Icons and symbols for different log types
const (
	IconSuccess = "✅"
	IconError   = "❌"
	IconRefresh = "🔄"
	IconStorm   = "🌩️"
)

// Success logs a success message with a green checkmark
func Success(args ...interface{}) {
	defaultLogger.Info(IconSuccess + " " + fmt.Sprint(args...))
}

// Successf logs a formatted success message
func Successf(format string, args ...interface{}) {
	Success(fmt.Sprintf(format, args...))
}

// Failure logs a failure message with a red cross
func Failure(args ...interface{}) {
	defaultLogger.Error(IconError + " " + fmt.Sprint(args...))
}

// Failuref logs a formatted failure message
func Failuref(format string, args ...interface{}) {
	Failure(fmt.Sprintf(format, args...))
}

// Progress logs a progress message with a refresh icon
func Progress(args ...interface{}) {
	defaultLogger.Info(IconRefresh + " " + fmt.Sprint(args...))
}

// Progressf logs a formatted progress message
func Progressf(format string, args ...interface{}) {
	Progress(fmt.Sprintf(format, args...))
}

// LogSection prints a section header surrounded by separator lines
func LogSection(title string) {
	line := strings.Repeat("=", len(title)+8)
	defaultLogger.Info(line)
	defaultLogger.Info("    " + title)
	defaultLogger.Info(line)
}
