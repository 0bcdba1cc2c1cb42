package breakpoint

import "github.com/sirupsen/logrus"

// Log is the default logger for gates created without WithLogger.
var Log = logrus.New()
