package app

// Config 存放应用级默认路径配置。
type Config struct {
	DBPath string
	// RulePath 为空表示使用内置规则包（规则文件是可选的覆盖项）。
	RulePath  string
	ReportDir string
}

// DefaultConfig 返回本地开发环境的默认配置。
func DefaultConfig() Config {
	return Config{
		DBPath:    "data/auditor.db",
		RulePath:  "",
		ReportDir: "data/reports",
	}
}
