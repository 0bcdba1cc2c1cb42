package agent

import "github.com/sirupsen/logrus"

// Log is the package-level logger. Agents log through it unless the config
// asks for a different level.
var Log = logrus.New()
