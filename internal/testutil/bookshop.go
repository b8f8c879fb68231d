package testutil

import (
	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/csn"
)

// Bookshop returns a freshly linked bookshop model. Each call builds new
// entities, so tests may not observe each other's models.
//
//	Books    ID, title, descr, stock, price, image (LargeBinary),
//	         author -> Authors, genre -> Genres, dimensions {height, width},
//	         reviews -> many Reviews (on), totalValue = price * stock,
//	         authorName = author.name, currency (stored calculated)
//	Authors  ID, name, placeOfBirth, books -> many Books (on)
//	Genres   ID, name, parent -> Genres
//	Reviews  ID, book -> Books, rating, text
//	Editions number + book (key association)
//	Prints   ID, edition -> Editions
func Bookshop() *csn.Model {
	return csn.MustModel(BookshopEntities()...)
}

// BookshopEntities returns the unlinked bookshop entities, for tests that
// add their own entities before linking.
func BookshopEntities() []*csn.Entity {
	return []*csn.Entity{
		csn.NewEntity("Books",
			&csn.Element{Name: "ID", Type: csn.TypeInteger, Key: true},
			&csn.Element{Name: "title", Type: csn.TypeString},
			&csn.Element{Name: "descr", Type: csn.TypeLargeString},
			&csn.Element{Name: "stock", Type: csn.TypeInteger},
			&csn.Element{Name: "price", Type: csn.TypeDecimal},
			&csn.Element{Name: "image", Type: csn.TypeLargeBinary},
			&csn.Element{Name: "author", Type: csn.TypeAssociation, Target: "Authors"},
			&csn.Element{Name: "genre", Type: csn.TypeAssociation, Target: "Genres"},
			&csn.Element{Name: "dimensions", Elements: []*csn.Element{
				{Name: "height", Type: csn.TypeDecimal},
				{Name: "width", Type: csn.TypeDecimal},
			}},
			&csn.Element{
				Name:   "reviews",
				Type:   csn.TypeComposition,
				Target: "Reviews",
				Many:   true,
				On:     cqn.NewXpr(cqn.NewRef("reviews", "book"), "=", cqn.NewRef("$self")),
			},
			&csn.Element{
				Name:  "totalValue",
				Type:  csn.TypeDecimal,
				Value: cqn.NewXpr(cqn.NewRef("price"), "*", cqn.NewRef("stock")),
			},
			&csn.Element{
				Name:  "authorName",
				Type:  csn.TypeString,
				Value: cqn.NewRef("author", "name"),
			},
			&csn.Element{
				Name:   "currency",
				Type:   csn.TypeString,
				Value:  cqn.NewVal("EUR"),
				Stored: true,
			},
		),
		csn.NewEntity("Authors",
			&csn.Element{Name: "ID", Type: csn.TypeInteger, Key: true},
			&csn.Element{Name: "name", Type: csn.TypeString},
			&csn.Element{Name: "placeOfBirth", Type: csn.TypeString},
			&csn.Element{
				Name:   "books",
				Type:   csn.TypeAssociation,
				Target: "Books",
				Many:   true,
				On:     cqn.NewXpr(cqn.NewRef("books", "author"), "=", cqn.NewRef("$self")),
			},
		),
		csn.NewEntity("Genres",
			&csn.Element{Name: "ID", Type: csn.TypeInteger, Key: true},
			&csn.Element{Name: "name", Type: csn.TypeString},
			&csn.Element{Name: "parent", Type: csn.TypeAssociation, Target: "Genres"},
		),
		csn.NewEntity("Reviews",
			&csn.Element{Name: "ID", Type: csn.TypeUUID, Key: true},
			&csn.Element{Name: "book", Type: csn.TypeAssociation, Target: "Books"},
			&csn.Element{Name: "rating", Type: csn.TypeInteger},
			&csn.Element{Name: "text", Type: csn.TypeString},
		),
		csn.NewEntity("Editions",
			&csn.Element{Name: "number", Type: csn.TypeInteger, Key: true},
			&csn.Element{Name: "book", Type: csn.TypeAssociation, Target: "Books", Key: true},
		),
		csn.NewEntity("Prints",
			&csn.Element{Name: "ID", Type: csn.TypeUUID, Key: true},
			&csn.Element{Name: "edition", Type: csn.TypeAssociation, Target: "Editions"},
		),
	}
}
