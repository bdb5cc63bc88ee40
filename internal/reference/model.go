package reference

// Domain — один справочник подстановок: коды базы и их имена во входных данных.
type Domain struct {
	Name  string `yaml:"name"`
	Items []Item `yaml:"items"`
}

type Item struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
	// Aliases — дополнительные написания имени во входных данных
	Aliases   []string `yaml:"aliases,omitempty"`
	Order     int      `yaml:"order,omitempty"`
	ValidFrom string   `yaml:"valid_from,omitempty"`
	ValidTo   string   `yaml:"valid_to,omitempty"`
}
