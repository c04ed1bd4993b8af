// Package testutil holds the shared data model fixture used across package tests.
package testutil

import (
	"querycore/internal/datamodel"
)

// BlogSchema builds a small blog data model:
//
//	User     1 ── 0..1 Profile   (UserProfile, Profile.user required, cascades from User)
//	User     1 ── n    Post      (PostAuthor)
//	Post     n ── n    Category  (PostCategories)
//	Team     1 ── n    Profile   (TeamProfiles)
//
// Post.tags is a scalar list. User and Post carry createdAt/updatedAt timestamps.
func BlogSchema() *datamodel.Schema {
	user := datamodel.NewModel("User",
		&datamodel.ScalarField{Name: "id", Type: datamodel.TypeInt, IsID: true, IsRequired: true, IsAutoGenerated: true},
		&datamodel.ScalarField{Name: "email", Type: datamodel.TypeString, IsRequired: true, IsUnique: true},
		&datamodel.ScalarField{Name: "name", Type: datamodel.TypeString},
		&datamodel.ScalarField{Name: "createdAt", Type: datamodel.TypeDateTime, Behaviour: datamodel.BehaviourCreatedAt},
		&datamodel.ScalarField{Name: "updatedAt", Type: datamodel.TypeDateTime, Behaviour: datamodel.BehaviourUpdatedAt},
		&datamodel.RelationField{Name: "posts", Relation: "PostAuthor", Side: datamodel.SideB, IsList: true},
		&datamodel.RelationField{Name: "profile", Relation: "UserProfile", Side: datamodel.SideA},
	)
	profile := datamodel.NewModel("Profile",
		&datamodel.ScalarField{Name: "id", Type: datamodel.TypeString, IsID: true, IsRequired: true},
		&datamodel.ScalarField{Name: "bio", Type: datamodel.TypeString},
		&datamodel.RelationField{Name: "user", Relation: "UserProfile", Side: datamodel.SideB, IsRequired: true},
		&datamodel.RelationField{Name: "team", Relation: "TeamProfiles", Side: datamodel.SideB},
	)
	post := datamodel.NewModel("Post",
		&datamodel.ScalarField{Name: "id", Type: datamodel.TypeInt, IsID: true, IsRequired: true, IsAutoGenerated: true},
		&datamodel.ScalarField{Name: "title", Type: datamodel.TypeString, IsRequired: true},
		&datamodel.ScalarField{Name: "score", Type: datamodel.TypeInt},
		&datamodel.ScalarField{Name: "status", Type: datamodel.TypeEnum, Default: "DRAFT", EnumValues: []string{"DRAFT", "PUBLISHED"}},
		&datamodel.ScalarField{Name: "tags", Type: datamodel.TypeString, IsList: true},
		&datamodel.ScalarField{Name: "createdAt", Type: datamodel.TypeDateTime, Behaviour: datamodel.BehaviourCreatedAt},
		&datamodel.ScalarField{Name: "updatedAt", Type: datamodel.TypeDateTime, Behaviour: datamodel.BehaviourUpdatedAt},
		&datamodel.RelationField{Name: "author", Relation: "PostAuthor", Side: datamodel.SideA},
		&datamodel.RelationField{Name: "categories", Relation: "PostCategories", Side: datamodel.SideA, IsList: true},
	)
	category := datamodel.NewModel("Category",
		&datamodel.ScalarField{Name: "id", Type: datamodel.TypeInt, IsID: true, IsRequired: true, IsAutoGenerated: true},
		&datamodel.ScalarField{Name: "name", Type: datamodel.TypeString, IsRequired: true, IsUnique: true},
		&datamodel.RelationField{Name: "posts", Relation: "PostCategories", Side: datamodel.SideB, IsList: true},
	)
	team := datamodel.NewModel("Team",
		&datamodel.ScalarField{Name: "id", Type: datamodel.TypeInt, IsID: true, IsRequired: true, IsAutoGenerated: true},
		&datamodel.ScalarField{Name: "name", Type: datamodel.TypeString, IsRequired: true},
		&datamodel.RelationField{Name: "members", Relation: "TeamProfiles", Side: datamodel.SideA, IsList: true},
	)

	schema, err := datamodel.NewSchema(
		[]*datamodel.Model{user, profile, post, category, team},
		[]*datamodel.Relation{
			{Name: "PostAuthor", ModelA: "Post", FieldA: "author", ModelB: "User", FieldB: "posts"},
			{Name: "UserProfile", ModelA: "User", FieldA: "profile", ModelB: "Profile", FieldB: "user", OnDeleteA: datamodel.OnDeleteCascade},
			{Name: "PostCategories", ModelA: "Post", FieldA: "categories", ModelB: "Category", FieldB: "posts"},
			{Name: "TeamProfiles", ModelA: "Team", FieldA: "members", ModelB: "Profile", FieldB: "team"},
		},
		nil,
	)
	if err != nil {
		panic(err)
	}
	return schema
}

// BlogSQLiteDDL creates the tables of BlogSchema in SQLite.
var BlogSQLiteDDL = []string{
	`CREATE TABLE "users" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "email" TEXT NOT NULL UNIQUE, "name" TEXT, "createdAt" DATETIME, "updatedAt" DATETIME)`,
	`CREATE TABLE "profiles" ("id" TEXT PRIMARY KEY, "bio" TEXT)`,
	`CREATE TABLE "posts" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "title" TEXT NOT NULL, "score" INTEGER, "status" TEXT, "createdAt" DATETIME, "updatedAt" DATETIME)`,
	`CREATE TABLE "posts_tags" ("nodeId" INTEGER NOT NULL, "position" INTEGER NOT NULL, "value" TEXT, PRIMARY KEY ("nodeId", "position"))`,
	`CREATE TABLE "categories" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "name" TEXT NOT NULL UNIQUE)`,
	`CREATE TABLE "teams" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "name" TEXT NOT NULL)`,
	`CREATE TABLE "_PostAuthor" ("A" INTEGER NOT NULL, "B" INTEGER NOT NULL, UNIQUE ("A", "B"))`,
	`CREATE TABLE "_UserProfile" ("A" INTEGER NOT NULL, "B" TEXT NOT NULL, UNIQUE ("A", "B"))`,
	`CREATE TABLE "_PostCategories" ("A" INTEGER NOT NULL, "B" INTEGER NOT NULL, UNIQUE ("A", "B"))`,
	`CREATE TABLE "_TeamProfiles" ("A" INTEGER NOT NULL, "B" TEXT NOT NULL, UNIQUE ("A", "B"))`,
}
