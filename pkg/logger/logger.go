// Package logger provides structured event logging for the whole service.
// Events are named snake_case strings with a free-form field map.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func Init() {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
}

func Info(event string, fields map[string]interface{}) {
	log.WithFields(logrus.Fields(fields)).Info(event)
}

func InfoWithUser(userID, event string, fields map[string]interface{}) {
	entry := log.WithFields(logrus.Fields(fields))
	entry.WithField("user_id", userID).Info(event)
}

func Warn(event string, fields map[string]interface{}) {
	log.WithFields(logrus.Fields(fields)).Warn(event)
}

func Error(event string, err error, fields map[string]interface{}) {
	entry := log.WithFields(logrus.Fields(fields))
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(event)
}
