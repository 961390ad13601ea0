package i18n

import "advisorai/pkg/domain"

// Topics returns the home-screen topic catalog in the requested language.
// IDs are stable across languages.
func Topics(lang domain.Language) []domain.Topic {
	zh := lang != domain.LangEN
	pick := func(zhText, enText string) string {
		if zh {
			return zhText
		}
		return enText
	}
	return []domain.Topic{
		{
			ID:          "flights",
			Title:       pick("机票咨询", "Flight Consult"),
			Description: pick("寻找最优惠的航线与订票时机", "Find best routes and booking times"),
			Icon:        "Plane",
			Color:       "bg-blue-500",
			Prompt:      pick("我想咨询北美内部或往返北美的特价机票，请帮我分析最近的趋势。", "I want to inquire about cheap flights within or to North America. Please analyze trends."),
		},
		{
			ID:          "hotels",
			Title:       pick("酒店住宿", "Hotel Stay"),
			Description: pick("北美各大城市住宿攻略与建议", "Guides for accommodation in NA cities"),
			Icon:        "Hotel",
			Color:       "bg-indigo-500",
			Prompt:      pick("我正在计划北美旅行，请推荐一些性价比高的酒店。", "I am planning a trip to NA, please recommend value-for-money hotels."),
		},
		{
			ID:          "jobs",
			Title:       pick("兼职实习", "Jobs & Interns"),
			Description: pick("求职经验分享与职业规划建议", "Job experience and career planning"),
			Icon:        "Briefcase",
			Color:       "bg-emerald-500",
			Prompt:      pick("我想了解目前北美针对新移民或留学生的兼职与实习机会。", "I want to know about job/internship opportunities for newcomers/students in NA."),
		},
		{
			ID:          "cars",
			Title:       pick("汽车决策", "Car Decisions"),
			Description: pick("购车流程、保险与维护全指南", "Buying, insurance, and maintenance guide"),
			Icon:        "Car",
			Color:       "bg-orange-500",
			Prompt:      pick("我在考虑在北美购买第一台车，请问二手车和新车如何权衡？", "I am considering buying my first car in NA. How do I weigh new vs used?"),
		},
		{
			ID:          "realestate",
			Title:       pick("房产租赁", "Real Estate"),
			Description: pick("租房买房流程与区域安全性评估", "Renting/Buying and safety assessment"),
			Icon:        "Home",
			Color:       "bg-rose-500",
			Prompt:      pick("我准备在北美长期定居，请帮我分析目前的房产租赁和买卖市场。", "I plan to settle in NA. Please analyze the current housing market."),
		},
		{
			ID:          "insurance",
			Title:       pick("保险理财", "Insurance"),
			Description: pick("医疗、人寿与财产保险专业解读", "Medical, life, and property insurance"),
			Icon:        "ShieldCheck",
			Color:       "bg-cyan-500",
			Prompt:      pick("北美的保险系统非常复杂，请为我介绍基础的医疗保险选择。", "NA insurance is complex. Please introduce basic medical options."),
		},
		{
			ID:          "education",
			Title:       pick("留学生活", "Study Abroad"),
			Description: pick("名校申请、校园生活与文化适应", "Applications, campus life, and culture"),
			Icon:        "GraduationCap",
			Color:       "bg-purple-500",
			Prompt:      pick("我正在申请北美大学，请问如何提升我的背景竞争力？", "I am applying to NA universities. How can I improve my profile?"),
		},
		{
			ID:          "investment",
			Title:       pick("投资税务", "Investment & Tax"),
			Description: pick("股市、基金与报税季节专业指导", "Stocks, funds, and tax season guidance"),
			Icon:        "TrendingUp",
			Color:       "bg-amber-500",
			Prompt:      pick("我想了解北美基础的报税知识以及合法的避税途径。", "I want to know basic NA tax knowledge and legal tax avoidance."),
		},
	}
}

// TopicByID resolves a topic in the requested language.
func TopicByID(id string, lang domain.Language) (domain.Topic, bool) {
	for _, t := range Topics(lang) {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Topic{}, false
}
