package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerInit sync.Once
	shared     *log.Logger
)

// Logger returns the process-wide logger. Output is one JSON object per
// line; tests may redirect it with SetOutput.
func Logger() *log.Logger {
	loggerInit.Do(func() {
		shared = log.New(os.Stdout, "", 0)
	})
	return shared
}

// Emit marshals fields and writes them as a single log line. A marshal
// failure degrades to a plain error line instead of dropping the event.
func Emit(fields map[string]any) {
	data, err := json.Marshal(fields)
	if err != nil {
		Logger().Printf(`{"ts":%q,"level":"error","msg":"log marshal failed"}`,
			time.Now().UTC().Format(time.RFC3339Nano))
		return
	}
	Logger().Println(string(data))
}

// LogRequest emits one access-log entry per completed HTTP request.
func LogRequest(entry map[string]any) {
	Emit(entry)
}
