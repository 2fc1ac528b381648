// Package registry holds the static catalog of tunable parameters this
// breeder supports: their value kind, settings category, and (for sysfs
// entries) the filesystem path the remote apply workflow writes to.
//
// This is a hand-maintained list, not auto-discovered from sysctl/sysfs/
// ethtool at runtime. Auto-discovery (sysctl -a, /sys scan, ethtool query)
// is the eventual replacement; until then the registry grows as parameters
// are added during testing, and unknown parameters are reported as
// warnings rather than hard failures so experimentation isn't blocked.
package registry

import "github.com/godon-project/breeder-worker/internal/domain"

// Entry is one parameter's catalog metadata.
type Entry struct {
	Name            string
	Kind            domain.ParamKind
	Category        domain.ParamCategory
	Path            string // sysfs only
	RequiresReboot  bool
	Description     string
}

// Parameters is the flat (non-ethtool) parameter catalog, keyed by the name
// as it appears under settings.{category}.{name}.
var Parameters = map[string]Entry{
	"net.ipv4.tcp_rmem": {
		Name: "net.ipv4.tcp_rmem", Kind: domain.KindInt, Category: domain.CategorySysctl,
		Description: "TCP read buffer sizes",
	},
	"net.ipv4.tcp_wmem": {
		Name: "net.ipv4.tcp_wmem", Kind: domain.KindInt, Category: domain.CategorySysctl,
		Description: "TCP write buffer sizes",
	},
	"net.core.netdev_budget": {
		Name: "net.core.netdev_budget", Kind: domain.KindInt, Category: domain.CategorySysctl,
		Description: "Network device budget",
	},
	"net.core.netdev_max_backlog": {
		Name: "net.core.netdev_max_backlog", Kind: domain.KindInt, Category: domain.CategorySysctl,
		Description: "Maximum backlog queue length",
	},
	"net.core.dev_weight": {
		Name: "net.core.dev_weight", Kind: domain.KindInt, Category: domain.CategorySysctl,
		Description: "CPU weight for network device processing",
	},
	"net.ipv4.tcp_congestion_control": {
		Name: "net.ipv4.tcp_congestion_control", Kind: domain.KindCategorical, Category: domain.CategorySysctl,
		Description: "TCP congestion control algorithm",
	},
	"cpu_governor": {
		Name: "cpu_governor", Kind: domain.KindCategorical, Category: domain.CategorySysfs,
		Path:        "/sys/devices/system/cpu/cpu0/cpufreq/scaling_governor",
		Description: "CPU frequency scaling governor",
	},
	"transparent_hugepage": {
		Name: "transparent_hugepage", Kind: domain.KindCategorical, Category: domain.CategorySysfs,
		Path:        "/sys/kernel/mm/transparent_hugepage/enabled",
		Description: "Transparent huge pages setting",
	},
	"qdisc": {
		Name: "qdisc", Kind: domain.KindCategorical, Category: domain.CategorySysfs,
		Path:        "/sys/class/net/eth0/queue/disc",
		Description: "Network interface queue discipline",
	},
	"governor": {
		Name: "governor", Kind: domain.KindCategorical, Category: domain.CategoryCPUFreq,
		Description: "CPU frequency governor",
	},
	"min_freq_ghz": {
		Name: "min_freq_ghz", Kind: domain.KindFloat, Category: domain.CategoryCPUFreq,
		Description: "Minimum CPU frequency in GHz",
	},
	"max_freq_ghz": {
		Name: "max_freq_ghz", Kind: domain.KindFloat, Category: domain.CategoryCPUFreq,
		Description: "Maximum CPU frequency in GHz",
	},
}

// EthtoolParams is the per-interface ethtool option catalog; interface
// names themselves are dynamic keys under settings.ethtool, not part of
// this table.
var EthtoolParams = map[string]Entry{
	"tso": {Name: "tso", Kind: domain.KindCategorical, Category: domain.CategoryEthtool, Description: "TCP Segmentation Offload"},
	"gro": {Name: "gro", Kind: domain.KindCategorical, Category: domain.CategoryEthtool, Description: "Generic Receive Offload"},
	"rx_ring": {Name: "rx_ring", Kind: domain.KindInt, Category: domain.CategoryEthtool, Description: "RX ring buffer size"},
	"tx_ring": {Name: "tx_ring", Kind: domain.KindInt, Category: domain.CategoryEthtool, Description: "TX ring buffer size"},
}

// Lookup returns the catalog entry for a non-ethtool parameter and whether
// it is known.
func Lookup(name string) (Entry, bool) {
	e, ok := Parameters[name]
	return e, ok
}

// LookupEthtool returns the catalog entry for an ethtool option and
// whether it is known.
func LookupEthtool(option string) (Entry, bool) {
	e, ok := EthtoolParams[option]
	return e, ok
}

// ListByCategory returns the names of every registered non-ethtool
// parameter in the given category, used to build "supported parameters:"
// error messages.
func ListByCategory(category domain.ParamCategory) []string {
	var out []string
	for name, e := range Parameters {
		if e.Category == category {
			out = append(out, name)
		}
	}
	return out
}

// EthtoolOptionNames returns every supported ethtool option name.
func EthtoolOptionNames() []string {
	out := make([]string, 0, len(EthtoolParams))
	for name := range EthtoolParams {
		out = append(out, name)
	}
	return out
}
