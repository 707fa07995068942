package logger

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given the Logger package", t, func() {
		Convey("New function", func() {
			Convey("When creating a logger with console output only", func() {
				logger, err := New(Options{Name: "dbwarden", Level: "info"})

				Convey("It should create a logger successfully", func() {
					So(err, ShouldBeNil)
					So(logger, ShouldNotBeNil)
					So(func() { logger.Infof("[%s] Test log", "sales") }, ShouldNotPanic)
				})
			})

			Convey("When creating a logger with a log file", func() {
				tempDir := t.TempDir()
				logFile := filepath.Join(tempDir, "nested", "dbwarden.log")

				logger, err := New(Options{Level: "debug", File: logFile})

				Convey("It should create the directory and write JSON lines", func() {
					So(err, ShouldBeNil)
					So(logger, ShouldNotBeNil)

					logger.Debugw("Test debug log", "database", "sales")
					logger.Close()

					content, err := os.ReadFile(logFile)
					So(err, ShouldBeNil)
					So(string(content), ShouldContainSubstring, `"msg":"Test debug log"`)
					So(string(content), ShouldContainSubstring, `"database":"sales"`)
				})
			})

			Convey("When creating a logger with an invalid log level", func() {
				tempDir := t.TempDir()
				logFile := filepath.Join(tempDir, "dbwarden.log")
				logger, err := New(Options{Level: "invalid", File: logFile})

				Convey("It should default to Info level", func() {
					So(err, ShouldBeNil)
					logger.Debug("hidden debug log")
					logger.Info("visible info log")
					logger.Close()

					content, err := os.ReadFile(logFile)
					So(err, ShouldBeNil)
					So(string(content), ShouldContainSubstring, "visible info log")
					So(string(content), ShouldNotContainSubstring, "hidden debug log")
				})
			})

			Convey("When the log directory cannot be created", func() {
				blocker := filepath.Join(t.TempDir(), "not-a-dir")
				So(os.WriteFile(blocker, []byte("x"), 0644), ShouldBeNil)

				logger, err := New(Options{Level: "info", File: filepath.Join(blocker, "test.log")})

				Convey("It should return an error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to create log directory")
					So(logger, ShouldBeNil)
				})
			})
		})

		Convey("rotation", func() {
			Convey("It fills zero values with defaults", func() {
				w := rotation(Options{File: "x.log"})
				So(w.MaxSize, ShouldEqual, defaultMaxSizeMB)
				So(w.MaxBackups, ShouldEqual, defaultMaxBackups)
				So(w.MaxAge, ShouldEqual, defaultMaxAgeDays)
				So(w.Compress, ShouldBeTrue)
			})

			Convey("It keeps explicit values", func() {
				w := rotation(Options{File: "x.log", MaxSizeMB: 10, MaxBackups: 1, MaxAgeDays: 2})
				So(w.MaxSize, ShouldEqual, 10)
				So(w.MaxBackups, ShouldEqual, 1)
				So(w.MaxAge, ShouldEqual, 2)
			})
		})

		Convey("Close method", func() {
			Convey("When closing a logger with console output only", func() {
				logger, err := New(Options{Level: "info"})
				So(err, ShouldBeNil)

				Convey("It should close without error", func() {
					So(func() { logger.Close() }, ShouldNotPanic)
				})
			})
		})
	})
}
