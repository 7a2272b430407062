package util

import (
	"fmt"
	"os"
	"strings"
)

func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// FormatErrorList condenses a list of errors into one error suitable for
// printing, with one indexed line per underlying error. The pre-flight
// checks use this to report every offending node instead of failing on
// the first.
func FormatErrorList(errList []error) error {
	var sb strings.Builder
	for i, e := range errList {
		fmt.Fprintf(&sb, "\t[%d] %v\n", i, e)
	}
	return fmt.Errorf("%s", sb.String())
}

// HasErrors is a simple wrapper to check if an error list contains
// errors.
func HasErrors(errList []error) bool {
	return len(errList) > 0
}
