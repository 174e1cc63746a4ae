package app

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var MemoryLog = newBuffer(16)

// GetLogger - logger with level from `log.<module>` config key
func GetLogger(module string) zerolog.Logger {
	if s, ok := modules[module]; ok {
		lvl, err := zerolog.ParseLevel(s)
		if err == nil {
			return Logger.Level(lvl)
		}
		Logger.Warn().Err(err).Caller().Send()
	}

	return Logger
}

// initLogger support:
// - output: empty (only to memory), stderr, stdout
// - format: empty (autodetect color support), color, json, text
// - time:   empty (disable timestamp), UNIXMS, UNIXMICRO, UNIXNANO
// - level:  disabled, trace, debug, info, warn, error...
func initLogger() {
	var cfg struct {
		Mod map[string]string `yaml:"log"`
	}

	cfg.Mod = modules // defaults

	LoadConfig(&cfg)

	Logger = newLogger(modules, MemoryLog)
}

func newLogger(mod map[string]string, memory io.Writer) zerolog.Logger {
	var writer io.Writer

	switch mod["output"] {
	case "stderr":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	}

	timeFormat := mod["time"]

	if writer != nil {
		if format := mod["format"]; format != "json" {
			console := &zerolog.ConsoleWriter{Out: writer}

			switch format {
			case "text":
				console.NoColor = true
			case "color":
			default:
				console.NoColor = !isatty.IsTerminal(writer.(*os.File).Fd())
			}

			if timeFormat != "" {
				console.TimeFormat = "15:04:05.000"
			} else {
				console.PartsOrder = []string{
					zerolog.LevelFieldName,
					zerolog.CallerFieldName,
					zerolog.MessageFieldName,
				}
			}

			writer = console
		}

		writer = zerolog.MultiLevelWriter(writer, memory)
	} else {
		writer = memory
	}

	lvl, err := zerolog.ParseLevel(mod["level"])
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(writer).Level(lvl)

	if timeFormat != "" {
		zerolog.TimeFieldFormat = timeFormat
		logger = logger.With().Timestamp().Logger()
	}

	return logger
}

var Logger zerolog.Logger

// modules log levels
var modules = map[string]string{
	"format": "",
	"level":  "info",
	"output": "stderr",
	"time":   zerolog.TimeFormatUnixMs,
}

const chunkSize = 1 << 16

// circularBuffer - last N chunks of log output for the API
type circularBuffer struct {
	mu     sync.Mutex
	chunks [][]byte
	r, w   int
}

func newBuffer(chunks int) *circularBuffer {
	b := &circularBuffer{chunks: make([][]byte, 0, chunks)}
	b.chunks = append(b.chunks, make([]byte, 0, chunkSize))
	return b
}

func (b *circularBuffer) Write(p []byte) (n int, err error) {
	n = len(p)

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.chunks[b.w])+n > chunkSize {
		if b.w++; b.w == cap(b.chunks) {
			b.w = 0
		}
		// overflow, drop oldest chunk
		if b.r == b.w {
			if b.r++; b.r == cap(b.chunks) {
				b.r = 0
			}
		}
		if b.w == len(b.chunks) {
			b.chunks = append(b.chunks, make([]byte, 0, chunkSize))
		} else {
			b.chunks[b.w] = b.chunks[b.w][:0]
		}
	}

	b.chunks[b.w] = append(b.chunks[b.w], p...)
	return
}

func (b *circularBuffer) WriteTo(w io.Writer) (n int64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := b.r; ; {
		var nn int
		if nn, err = w.Write(b.chunks[i]); err != nil {
			return
		}
		n += int64(nn)

		if i == b.w {
			break
		}
		if i++; i == cap(b.chunks) {
			i = 0
		}
	}
	return
}

func (b *circularBuffer) Bytes() []byte {
	var buf []byte
	b.mu.Lock()
	for i := b.r; ; {
		buf = append(buf, b.chunks[i]...)
		if i == b.w {
			break
		}
		if i++; i == cap(b.chunks) {
			i = 0
		}
	}
	b.mu.Unlock()
	return buf
}

func (b *circularBuffer) Reset() {
	b.mu.Lock()
	b.chunks[0] = b.chunks[0][:0]
	b.r = 0
	b.w = 0
	b.mu.Unlock()
}
