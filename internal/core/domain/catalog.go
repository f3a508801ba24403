package domain

import (
	"strings"
	"unicode/utf8"
)

type Category struct {
	Number int64  `json:"category_number"`
	Name   string `json:"category_name"`
}

func (c Category) Validate() error {
	if c.Number <= 0 {
		return invalid("category_number", "must be positive")
	}
	return requireText("category_name", c.Name, 50)
}

type Product struct {
	ID              int64  `json:"product_id"`
	CategoryNumber  int64  `json:"category_number"`
	Name            string `json:"product_name"`
	Producer        string `json:"producer"`
	Characteristics string `json:"characteristics"`
}

func (p Product) Validate() error {
	if p.ID <= 0 {
		return invalid("product_id", "must be positive")
	}
	if p.CategoryNumber <= 0 {
		return invalid("category_number", "must be positive")
	}
	if err := requireText("product_name", p.Name, 50); err != nil {
		return err
	}
	if err := requireText("producer", p.Producer, 50); err != nil {
		return err
	}
	return requireText("characteristics", p.Characteristics, 100)
}

// ProductFilter matches on category and a case-insensitive name fragment; zero values match all.
type ProductFilter struct {
	CategoryNumber int64
	Search         string
}

func requireText(field, v string, max int) error {
	if strings.TrimSpace(v) == "" {
		return invalid(field, "is required")
	}
	if utf8.RuneCountInString(v) > max {
		return invalid(field, "is too long")
	}
	return nil
}
