package mongo

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/mbolis/prom-tracker/cohort"
)

// CriteriaFilter translates cohort criteria into a patients query: every
// criterion's codes must all be in the matching answer set. A criterion with
// no codes matches nobody.
func CriteriaFilter(criteria []cohort.Criterion) bson.D {
	if len(criteria) == 0 {
		return bson.D{}
	}

	and := bson.A{}
	for _, c := range criteria {
		if len(c.AnswerCodes) == 0 {
			return bson.D{{Key: "_id", Value: bson.M{"$in": bson.A{}}}}
		}
		and = append(and, bson.M{"answers." + c.Key(): bson.M{"$all": c.AnswerCodes}})
	}
	return bson.D{{Key: "$and", Value: and}}
}
