// Copyright (C) 2025  Nexedi SA and Contributors.
//                     Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.

package main

import (
	"fmt"
	"os"
)

// Config is the daemon's environment-derived configuration: five
// variables, read once at startup.
type Config struct {
	// BaseDir holds one subdirectory per bare repository, including
	// the All-Projects.git / All-Users.git bootstrap repos.
	BaseDir string
	// Prefix is the NDN name prefix this daemon answers under, e.g.
	// "/git-ndn-sync".
	Prefix string
	// KeyStoreDir holds this peer's own private signing key(s).
	KeyStoreDir string
	// SigningKeyName names the key under KeyStoreDir this peer signs
	// new records with, and the certificate name embedded as every
	// signature's key locator.
	SigningKeyName string
	// TrustAnchorPath is the on-disk path to the bootstrap trust
	// anchor certificate.
	TrustAnchorPath string
}

const (
	envBaseDir         = "GIT_NDN_BASEDIR"
	envPrefix          = "GIT_NDN_PREFIX"
	envKeyStoreDir     = "GIT_NDN_TPM"
	envSigningKeyName  = "GIT_NDN_KEY"
	envTrustAnchorPath = "GIT_NDN_TRUST_ANCHOR"
)

// LoadConfig reads Config from the environment, failing if any
// required variable is unset.
func LoadConfig() (*Config, error) {
	c := &Config{
		BaseDir:         os.Getenv(envBaseDir),
		Prefix:          os.Getenv(envPrefix),
		KeyStoreDir:     os.Getenv(envKeyStoreDir),
		SigningKeyName:  os.Getenv(envSigningKeyName),
		TrustAnchorPath: os.Getenv(envTrustAnchorPath),
	}
	for env, v := range map[string]string{
		envBaseDir:         c.BaseDir,
		envPrefix:          c.Prefix,
		envKeyStoreDir:     c.KeyStoreDir,
		envSigningKeyName:  c.SigningKeyName,
		envTrustAnchorPath: c.TrustAnchorPath,
	} {
		if v == "" {
			return nil, fmt.Errorf("config: %s is not set", env)
		}
	}
	return c, nil
}
