package store

import "inspirestack/pkg/domain"

// DefaultCategories is the category set seeded on first migration.
var DefaultCategories = []domain.Category{
	{Name: "All", Slug: domain.AllCategorySlug, Icon: "🌟", Color: "bg-slate-100 hover:bg-slate-200 text-slate-800 dark:bg-slate-700"},
	{Name: "Mindset", Slug: "mindset", Icon: "🧠", Color: "bg-slate-200 hover:bg-slate-300 text-slate-800 dark:bg-slate-600"},
	{Name: "Productivity", Slug: "productivity", Icon: "⚡", Color: "bg-slate-300 hover:bg-slate-400 text-slate-900 dark:bg-slate-500"},
	{Name: "Leadership", Slug: "leadership", Icon: "👑", Color: "bg-slate-400 hover:bg-slate-500 text-white dark:bg-slate-400"},
	{Name: "Learning", Slug: "learning", Icon: "📚", Color: "bg-slate-500 hover:bg-slate-600 text-white dark:bg-slate-300"},
	{Name: "Wellbeing", Slug: "wellbeing", Icon: "🌿", Color: "bg-slate-600 hover:bg-slate-700 text-white dark:bg-slate-200"},
	{Name: "Spirituality", Slug: "spirituality", Icon: "🙏", Color: "bg-slate-700 hover:bg-slate-800 text-white dark:bg-slate-100"},
	{Name: "Relationship", Slug: "relationship", Icon: "💝", Color: "bg-slate-800 hover:bg-slate-900 text-white dark:bg-slate-50"},
	{Name: "Career", Slug: "career", Icon: "🚀", Color: "bg-slate-900 hover:bg-black text-white dark:bg-white"},
}
