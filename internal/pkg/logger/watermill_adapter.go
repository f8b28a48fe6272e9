package logger

import (
	"github.com/ThreeDotsLabs/watermill"
)

const watermillModule = "EVENT_BUS"

// watermillAdapter routes the event bus's own logging through ILogger.
type watermillAdapter struct {
	log    ILogger
	fields watermill.LogFields
}

func NewWatermillAdapter(log ILogger) watermill.LoggerAdapter {
	return &watermillAdapter{log: log}
}

func (a *watermillAdapter) merge(fields watermill.LogFields) map[string]interface{} {
	out := make(map[string]interface{}, len(a.fields)+len(fields))
	for k, v := range a.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (a *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	details := a.merge(fields)
	if err != nil {
		details["error"] = err.Error()
	}
	a.log.Error(watermillModule, msg, details)
}

func (a *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info(watermillModule, msg, a.merge(fields))
}

func (a *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(watermillModule, msg, a.merge(fields))
}

// Trace is per-message chatter; it goes to debug.
func (a *watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debug(watermillModule, msg, a.merge(fields))
}

func (a *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillAdapter{log: a.log, fields: a.merge(fields)}
}
