package extract

import (
	"testing"

	"github.com/ZebulonRouseFrantzich/stagerun/internal/distribution"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		entry      string
		executable string
		want       distribution.FileType
	}{
		{"exact executable path", "bin/mysqld", "bin/mysqld", distribution.Executable},
		{"executable under top dir", "mysql-8.0/bin/mysqld", "bin/mysqld", distribution.Executable},
		{"bare executable name", "mysql-8.0/bin/mysqld", "mysqld", distribution.Executable},
		{"similar name is not executable", "bin/mysqld_safe", "mysqld", distribution.Support},
		{"lib dir", "lib/plugin/auth.so", "mysqld", distribution.Library},
		{"versioned shared object", "bin/libssl.so.3", "mysqld", distribution.Library},
		{"dylib", "Frameworks/libfoo.dylib", "mysqld", distribution.Library},
		{"etc dir", "etc/ssl/cert.pem", "mysqld", distribution.Config},
		{"cnf file", "my-default.cnf", "mysqld", distribution.Config},
		{"support", "share/english/errmsg.sys", "mysqld", distribution.Support},
		{"no executable configured", "bin/mysqld", "", distribution.Support},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.entry, tt.executable); got != tt.want {
				t.Errorf("classify(%q, %q) = %v, want %v", tt.entry, tt.executable, got, tt.want)
			}
		})
	}
}
