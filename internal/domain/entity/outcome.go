package entity

// 规范存储单位：温度一律开尔文，风速米每秒，降水毫米
// 展示单位转换在聚合阶段执行且只执行一次

// Outcome 某个历史模式在 (模式时刻 + horizon) 实际观测到的变量值
// 索引构建期写入一次，查询期只读
type Outcome struct {
	Identifier string
	Horizon    int
	// Values 变量名 -> 规范单位下的物理量
	Values map[string]float64
	// Valid 变量名 -> 该变量观测是否有效
	Valid map[string]bool
}

// ValidValue 返回变量值及其有效性
func (o *Outcome) ValidValue(variable string) (float64, bool) {
	if o == nil || !o.Valid[variable] {
		return 0, false
	}
	v, ok := o.Values[variable]
	return v, ok
}

// TemperatureUnit 温度展示单位
type TemperatureUnit string

const (
	UnitKelvin     TemperatureUnit = "kelvin"
	UnitCelsius    TemperatureUnit = "celsius"
	UnitFahrenheit TemperatureUnit = "fahrenheit"
)

// temperatureVariables 以开尔文存储、需要单位换算的变量
var temperatureVariables = map[string]bool{
	"t2m":      true,
	"dewpoint": true,
	"sst":      true,
}

// IsTemperature 判断变量是否为温度类变量
func IsTemperature(variable string) bool {
	return temperatureVariables[variable]
}

// knownVariables 实况表收录的全部变量
var knownVariables = map[string]bool{
	"t2m":      true,
	"dewpoint": true,
	"sst":      true,
	"wind10m":  true,
	"precip":   true,
	"mslp":     true,
}

// KnownVariable 判断变量名是否受支持
func KnownVariable(variable string) bool {
	return knownVariables[variable]
}

// DefaultVariables 请求未指定变量时的缺省集合
func DefaultVariables() []string {
	return []string{"t2m", "wind10m", "precip"}
}

// ConvertTemperature 将开尔文值转换到目标展示单位
func ConvertTemperature(kelvin float64, unit TemperatureUnit) float64 {
	switch unit {
	case UnitCelsius:
		return kelvin - 273.15
	case UnitFahrenheit:
		return (kelvin-273.15)*9/5 + 32
	default:
		return kelvin
	}
}

// DisplayUnit 返回变量的展示单位标签
func DisplayUnit(variable string, unit TemperatureUnit) string {
	if IsTemperature(variable) {
		return string(unit)
	}
	switch variable {
	case "wind10m":
		return "m/s"
	case "precip":
		return "mm"
	case "mslp":
		return "hPa"
	default:
		return ""
	}
}
