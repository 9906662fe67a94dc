package log

import (
	"github.com/sirupsen/logrus"
)

// BadgerLogrusAdapter implements badger.Logger on top of logrus.
// Badger reports routine compaction and value-log activity at info level,
// which would drown crawl progress, so Infof is demoted to debug.
type BadgerLogrusAdapter struct {
	*logrus.Entry
}

// NewBadgerLogrusAdapter creates a new adapter
func NewBadgerLogrusAdapter(entry *logrus.Entry) *BadgerLogrusAdapter {
	return &BadgerLogrusAdapter{entry}
}

func (l *BadgerLogrusAdapter) Errorf(f string, v ...any)   { l.Entry.Errorf(f, v...) }
func (l *BadgerLogrusAdapter) Warningf(f string, v ...any) { l.Entry.Warnf(f, v...) }
func (l *BadgerLogrusAdapter) Infof(f string, v ...any)    { l.Entry.Debugf(f, v...) }
func (l *BadgerLogrusAdapter) Debugf(f string, v ...any)   { l.Entry.Tracef(f, v...) }

// MongoLogSink implements the MongoDB driver's options.LogSink on top of
// logrus. Driver level 1 is info, anything higher is debug.
type MongoLogSink struct {
	entry *logrus.Entry
}

// NewMongoLogSink creates a sink writing driver messages to entry
func NewMongoLogSink(entry *logrus.Entry) *MongoLogSink {
	return &MongoLogSink{entry: entry}
}

// Info logs a driver message. keysAndValues alternate key, value.
func (s *MongoLogSink) Info(level int, message string, keysAndValues ...any) {
	entry := s.entry.WithFields(pairsToFields(keysAndValues))
	if level <= 1 {
		entry.Info(message)
		return
	}
	entry.Debug(message)
}

// Error logs a driver error
func (s *MongoLogSink) Error(err error, message string, keysAndValues ...any) {
	s.entry.WithFields(pairsToFields(keysAndValues)).WithError(err).Error(message)
}

func pairsToFields(keysAndValues []any) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
