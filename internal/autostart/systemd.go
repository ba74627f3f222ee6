package autostart

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
)

var ErrUnsupported = errors.New("autostart is only supported with systemd")

const unitName = "mirrorsync.service"

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=mirrorsync directory mirroring daemon
After=local-fs.target

[Service]
ExecStart={{.ExecPath}} daemon
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`))

// SystemdAutoStarter installs a systemd user unit. Dir overrides the unit
// directory and skips systemctl when set.
type SystemdAutoStarter struct {
	Dir string
}

func renderUnit(w io.Writer, execPath string) error {
	return unitTemplate.Execute(w, map[string]string{"ExecPath": execPath})
}

func (s *SystemdAutoStarter) unitPath() (string, error) {
	dir := s.Dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config", "systemd", "user")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(dir, unitName), nil
}

func (s *SystemdAutoStarter) systemctl(cmds ...[]string) error {
	if s.Dir != "" {
		return nil
	}

	for _, args := range cmds {
		cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to run systemctl %v: %w\n%s", args, err, out)
		}
	}

	return nil
}

func (s *SystemdAutoStarter) Install(execPath string) error {
	path, err := s.unitPath()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create unit file: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	if err := renderUnit(f, execPath); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}

	return s.systemctl(
		[]string{"daemon-reload"},
		[]string{"enable", unitName},
		[]string{"start", unitName},
	)
}

func (s *SystemdAutoStarter) Uninstall() error {
	if s.Dir == "" {
		for _, args := range [][]string{{"stop", unitName}, {"disable", unitName}} {
			_ = exec.Command("systemctl", append([]string{"--user"}, args...)...).Run()
		}
	}

	path, err := s.unitPath()
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

func (s *SystemdAutoStarter) IsInstalled() (bool, error) {
	path, err := s.unitPath()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	return err == nil, nil
}
