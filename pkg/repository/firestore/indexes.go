package firestore

import "github.com/m-mizutani/fireconf"

// IndexConfig declares the vector and composite indexes the catalog and
// content collections need for the given collection prefix and embedding
// dimension.
func IndexConfig(prefix string, dimension int) *fireconf.Config {
	vector := func(leading ...string) fireconf.Index {
		var fields []fireconf.IndexField
		for _, path := range leading {
			fields = append(fields, fireconf.IndexField{Path: path, Order: fireconf.OrderAscending})
		}
		fields = append(fields, fireconf.IndexField{
			Path:   embeddingField,
			Vector: &fireconf.VectorConfig{Dimension: dimension},
		})
		return fireconf.Index{Fields: fields}
	}

	return &fireconf.Config{
		Collections: []fireconf.Collection{
			{
				Name:    collectionName(prefix, catalogCollection),
				Indexes: []fireconf.Index{vector()},
			},
			{
				Name: collectionName(prefix, contentCollection),
				Indexes: []fireconf.Index{
					vector(),
					// pre-filtered nearest-neighbour search
					vector(courseTitleField),
					vector(lessonNumberField),
					vector(courseTitleField, lessonNumberField),
				},
			},
		},
	}
}
