package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ldamasio/b2-go/internal/clierr"
)

const debugLogFile = "b2_cli.log"

var bannerSeparator = strings.Repeat("=", 40)

// logConfig is the document read by --logConfig.
type logConfig struct {
	Level           string `yaml:"level"`
	Format          string `yaml:"format"`
	Output          string `yaml:"output"`
	TimestampFormat string `yaml:"timestampFormat"`
}

// setupLogging configures the invocation logger from the global flags and
// writes the opening banner. --logConfig wins over --verbose, which wins
// over --debugLogs.
func (a *app) setupLogging(c *cobra.Command) error {
	switch {
	case a.flags.logConfig != "":
		if err := a.applyLogConfig(a.flags.logConfig); err != nil {
			return err
		}
	case a.flags.verbose:
		a.logger.SetOutput(a.env.Stderr)
		a.logger.SetLevel(logrus.DebugLevel)
		a.logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	case a.flags.debugLogs:
		f, err := os.OpenFile(debugLogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return clierr.Wrap(clierr.Configuration, errors.Wrapf(err, "cannot open %s", debugLogFile))
		}
		a.closeLog = func() { f.Close() }
		a.logger.SetOutput(f)
		a.logger.SetLevel(logrus.DebugLevel)
		a.logger.SetFormatter(&utcTabFormatter{})
	}
	a.logBanner(c)
	return nil
}

func (a *app) applyLogConfig(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return clierr.Configurationf("cannot read log configuration %s: %v", path, err)
	}
	var cfg logConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return clierr.Configurationf("invalid log configuration %s: %v", path, err)
	}

	level := logrus.DebugLevel
	if cfg.Level != "" {
		if level, err = logrus.ParseLevel(strings.ToLower(cfg.Level)); err != nil {
			return clierr.Configurationf("invalid log level %q in %s", cfg.Level, path)
		}
	}
	a.logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		a.logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			DisableColors:   true,
			TimestampFormat: cfg.TimestampFormat,
		})
	case "json":
		a.logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: cfg.TimestampFormat})
	default:
		return clierr.Configurationf("invalid log format %q in %s, use text or json", cfg.Format, path)
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stderr":
		out = a.env.Stderr
	case "stdout":
		out = a.env.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return clierr.Configurationf("cannot open log output %s: %v", cfg.Output, err)
		}
		a.closeLog = func() { f.Close() }
		out = f
	}
	a.logger.SetOutput(out)
	return nil
}

func (a *app) logBanner(c *cobra.Command) {
	a.logger.Infof(`// %s %s %s \\`, bannerSeparator, centered(version, 8), bannerSeparator)
	a.logger.Debugf("platform is %s/%s", runtime.GOOS, runtime.GOARCH)
	a.logger.Debugf("Go version is %s, built %s", runtime.Version(), buildTime)
	a.logger.Debugf("locale is %q", a.locale())
	a.logger.Debugf("stdout encoding is %s", a.printer.StdoutCharset())

	name := c.Name()
	if d, ok := lookup(name); ok {
		a.current = d
	}
	if a.current.ForbidLoggingArguments {
		a.logger.Infof("starting command [%s] (arguments hidden)", name)
		return
	}
	argv := append([]string{"b2"}, a.env.Args...)
	a.logger.Infof("starting command [%s] with arguments: %q", name, argv)
}

func (a *app) locale() string {
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		if v := a.env.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// centered pads s with spaces to width, extra space on the right.
func centered(s string, width int) string {
	if len(s) >= width {
		return s
	}
	left := (width - len(s)) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-len(s)-left)
}

// utcTabFormatter writes the tab-separated lines of the debug log file:
// UTC timestamp, process id, level, message, then sorted fields.
type utcTabFormatter struct{}

func (f *utcTabFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s\t%d\t%s\t%s",
		entry.Time.UTC().Format("2006-01-02 15:04:05.000"),
		os.Getpid(),
		strings.ToUpper(entry.Level.String()),
		entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\t%s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

var _ logrus.Formatter = (*utcTabFormatter)(nil)
