package binding

import "github.com/sirupsen/logrus"

// Log is the package-level logger used by the binding.
var Log = logrus.New()
