package config

// Catalog maps a catalog position number to its product name.
type Catalog map[int]string

func DefaultCatalog() Catalog {
	return Catalog{
		1: "BIOACTIVE ovarian support",
		2: "BIOACTIVE endometrium support",
		3: "BIOACTIVE neurological health",
		4: "BIOACTIVE immune system",
		5: "BIOACTIVE connective tissue",
		6: "BIOACTIVE for men",
	}
}

// Name returns the product name for a position, or an empty string.
func (c Catalog) Name(position int) string {
	return c[position]
}
