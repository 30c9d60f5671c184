package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Output directory for generated disk images
	OutputDir string `yaml:"output_dir"`
	// DiskSizeMB is the size of provisioned raw disks in MiB
	DiskSizeMB int `yaml:"disk_size_mb"`
	// MountPoint used by the inspection pipeline
	MountPoint string `yaml:"mount_point"`
	// LockFile guards the host-global device slot
	LockFile string `yaml:"lock_file"`
	NBD      NBD    `yaml:"nbd"`
	ZFS      ZFS    `yaml:"zfs"`
	Retry    Retry  `yaml:"retry"`
	Ledger   Ledger `yaml:"ledger"`
}

type NBD struct {
	Device  string `yaml:"device"`
	MaxPart int    `yaml:"max_part"`
}

type ZFS struct {
	PoolName string `yaml:"pool_name"`
	Altroot  string `yaml:"altroot"`
}

type Retry struct {
	Attempts     int `yaml:"attempts"`
	DelaySeconds int `yaml:"delay_seconds"`
}

type Ledger struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// defaultConfig provides baseline settings matching a stock host
var defaultConfig = Config{
	OutputDir:  "test_images",
	DiskSizeMB: 1024,
	MountPoint: "/mnt/image_analysis",
	LockFile:   "/run/imageforge.lock",
	NBD: NBD{
		Device:  "/dev/nbd0",
		MaxPart: 8,
	},
	ZFS: ZFS{
		PoolName: "sbomtmp",
		Altroot:  "/tmp/sbom_zfs_tmp",
	},
	Retry: Retry{
		Attempts:     3,
		DelaySeconds: 3,
	},
	Ledger: Ledger{
		Enabled: true,
		Path:    "/var/lib/imageforge/runs.db",
	},
}

func Load(path string) (*Config, error) {
	if path == "" {
		// Try default locations
		candidates := []string{
			"/etc/imageforge/config.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/imageforge/config.yaml"),
			"config.yaml",
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	cfg := defaultConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, err
			}
		}
	}

	// Backfill zero values so a sparse config file still works
	if cfg.OutputDir == "" {
		cfg.OutputDir = defaultConfig.OutputDir
	}
	if cfg.DiskSizeMB == 0 {
		cfg.DiskSizeMB = defaultConfig.DiskSizeMB
	}
	if cfg.MountPoint == "" {
		cfg.MountPoint = defaultConfig.MountPoint
	}
	if cfg.LockFile == "" {
		cfg.LockFile = defaultConfig.LockFile
	}
	if cfg.NBD.Device == "" {
		cfg.NBD.Device = defaultConfig.NBD.Device
	}
	if cfg.NBD.MaxPart == 0 {
		cfg.NBD.MaxPart = defaultConfig.NBD.MaxPart
	}
	if cfg.ZFS.PoolName == "" {
		cfg.ZFS.PoolName = defaultConfig.ZFS.PoolName
	}
	if cfg.ZFS.Altroot == "" {
		cfg.ZFS.Altroot = defaultConfig.ZFS.Altroot
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = defaultConfig.Retry.Attempts
	}
	if cfg.Retry.DelaySeconds == 0 {
		cfg.Retry.DelaySeconds = defaultConfig.Retry.DelaySeconds
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = defaultConfig.Ledger.Path
	}

	return &cfg, nil
}

// RetryDelay returns the configured retry delay as a duration
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Retry.DelaySeconds) * time.Second
}
