// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flow

// BundleMode selects fast-path vs. enterprise validation/runtime rules
// (spec §4.2 stage 5, §4.3 sandbox).
type BundleMode string

const (
	BundleModeInternalFast BundleMode = "internal_fast"
	BundleModeEnterprise   BundleMode = "enterprise"
)

// FetchPolicy controls whether bundle sync always re-fetches or first
// checks for changes (spec §4.4).
type FetchPolicy string

const (
	FetchPolicyCacheCheck FetchPolicy = "cache_check"
	FetchPolicyAlways     FetchPolicy = "always"
)

// BundleManifest is the top-level bundle document (spec §3
// "BundleManifest"). Strict extra-forbidden on every subtree.
type BundleManifest struct {
	Version   int                     `yaml:"version"`
	Mode      BundleMode              `yaml:"mode"`
	Bundle    BundleDescriptor        `yaml:"bundle"`
	Resources map[string]ResourceSpec `yaml:"resources,omitempty"`
	Paths     map[string]string       `yaml:"paths,omitempty"`
	ZipDrivers []string               `yaml:"zip_drivers,omitempty"`
	EnvFiles  []EnvFileSpec           `yaml:"env_files,omitempty"`
}

// EnvFileKind is one of the three shapes spec §6 "Env files" recognizes.
type EnvFileKind string

const (
	EnvFileDotenv EnvFileKind = "dotenv"
	EnvFileJSON   EnvFileKind = "json"
	EnvFileDir    EnvFileKind = "dir"
)

// EnvFileSpec describes one overlay applied to the run's environment
// snapshot before it is sealed (spec §4.3 "overlay env_files declared by
// the manifest", §6 "Env files").
type EnvFileSpec struct {
	Type     EnvFileKind `yaml:"type"`
	Path     string      `yaml:"path"`
	Optional bool        `yaml:"optional,omitempty"`
	Prefix   string      `yaml:"prefix,omitempty"`
}

// BundleDescriptor is the `bundle:` subtree of a BundleManifest.
type BundleDescriptor struct {
	ID          string       `yaml:"id"`
	Source      BundleSource `yaml:"source"`
	Layout      BundleLayout `yaml:"layout"`
	EntryFlow   string       `yaml:"entry_flow"`
	FetchPolicy FetchPolicy  `yaml:"fetch_policy"`
}

// BundleLayout names the relative paths of a bundle's well-known
// subtrees. ProfilesFile is required; FlowsDir/PluginsDir are optional.
type BundleLayout struct {
	FlowsDir     string `yaml:"flows_dir,omitempty"`
	ProfilesFile string `yaml:"profiles_file"`
	PluginsDir   string `yaml:"plugins_dir,omitempty"`
}

// BundleSourceType enumerates the five source kinds a bundle can be
// fetched from (spec §3 "BundleSource", §4.4).
type BundleSourceType string

const (
	SourceFilesystem BundleSourceType = "filesystem"
	SourceSFTP       BundleSourceType = "sftp"
	SourceSMB        BundleSourceType = "smb"
	SourceDB         BundleSourceType = "db"
	SourceREST       BundleSourceType = "rest"
)

// BundleSource describes where and how to fetch bundle contents. Non-
// filesystem sources require Resource; filesystem/sftp/smb require
// BasePath — both invariants are enforced by pkg/validate, not here.
type BundleSource struct {
	Type            BundleSourceType `yaml:"type"`
	Resource        string           `yaml:"resource,omitempty"`
	BasePath        string           `yaml:"base_path,omitempty"`
	Bundle          string           `yaml:"bundle,omitempty"`
	ListSQL         string           `yaml:"list_sql,omitempty"`
	FetchSQL        string           `yaml:"fetch_sql,omitempty"`
	ListPath        string           `yaml:"list_path,omitempty"`
	FetchPath       string           `yaml:"fetch_path,omitempty"`
	PrefixParam     string           `yaml:"prefix_param,omitempty"`
	StrictFingerprint bool           `yaml:"strict_fingerprint,omitempty"`
}

// RemoteFileMeta is one file observed at a bundle source (spec §3
// "RemoteFileMeta"). The canonical reuse identity is SHA256 when known,
// else the pair (Size, MtimeMs).
type RemoteFileMeta struct {
	RelPath string
	Path    string
	Name    string
	IsDir   bool
	Size    int64
	MtimeMs int64
	SHA256  string
}

// Signature returns this file's identity string for fingerprinting
// (spec §3 "Fingerprint"): "sha256:<hex>" when known, else
// "sz:<n>|mt_ms:<m>".
func (f RemoteFileMeta) Signature() string {
	if f.SHA256 != "" {
		return "sha256:" + f.SHA256
	}
	return sizeMtimeSignature(f.Size, f.MtimeMs)
}
