/*
MIT License

Copyright (c) 2024-2026 the obslink authors

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

/*Package logw wraps github.com/google/logger behind package-level severity
functions so library code can log without owning a logger instance. The
default sink is stdout with verbose off; a daemon or CLI entry point calls
Setup once to change that.*/
package logw

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/logger"
)

var (
	mtx     sync.RWMutex
	log     *logger.Logger
	verbose bool
)

func init() {
	log = logger.Init("obslink", false, false, os.Stdout)
}

/*Setup reinitializes the shared logger. verboseLogs turns Debug output on;
out receives everything. Call once from main before any device traffic.*/
func Setup(verboseLogs bool, out io.Writer) {
	mtx.Lock()
	defer mtx.Unlock()
	if log != nil {
		log.Close()
	}
	verbose = verboseLogs
	log = logger.Init("obslink", false, false, out)
}

//Debug logs wire-level chatter. Dropped unless Setup enabled verbose logs.
func Debug(v ...interface{}) {
	mtx.RLock()
	defer mtx.RUnlock()
	if verbose {
		log.InfoDepth(1, v...)
	}
}

//Debugf logs wire-level chatter. Dropped unless Setup enabled verbose logs.
func Debugf(format string, v ...interface{}) {
	mtx.RLock()
	defer mtx.RUnlock()
	if verbose {
		log.InfoDepth(1, fmt.Sprintf(format, v...))
	}
}

//Info uses the shared logger and logs with the Info severity.
func Info(v ...interface{}) {
	mtx.RLock()
	defer mtx.RUnlock()
	log.InfoDepth(1, v...)
}

//Infof uses the shared logger and logs with the Info severity.
func Infof(format string, v ...interface{}) {
	mtx.RLock()
	defer mtx.RUnlock()
	log.InfoDepth(1, fmt.Sprintf(format, v...))
}

//Warning uses the shared logger and logs with the Warning severity.
func Warning(v ...interface{}) {
	mtx.RLock()
	defer mtx.RUnlock()
	log.WarningDepth(1, v...)
}

//Warningf uses the shared logger and logs with the Warning severity.
func Warningf(format string, v ...interface{}) {
	mtx.RLock()
	defer mtx.RUnlock()
	log.WarningDepth(1, fmt.Sprintf(format, v...))
}

//Error uses the shared logger and logs with the Error severity.
func Error(v ...interface{}) {
	mtx.RLock()
	defer mtx.RUnlock()
	log.ErrorDepth(1, v...)
}

//Errorf uses the shared logger and logs with the Error severity.
func Errorf(format string, v ...interface{}) {
	mtx.RLock()
	defer mtx.RUnlock()
	log.ErrorDepth(1, fmt.Sprintf(format, v...))
}
